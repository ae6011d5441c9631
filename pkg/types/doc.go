// Package types defines the List and Listitem entities, the raw Record form
// they take in the store, the trash retention policy, and the standard errors
// shared by every layer of the lists engine.
package types
