// Package models defines domain entities and persistence interfaces for the HarmonyMaker service.
//
// Persistent entities:
//   - [User] : Accounts created by username/password registration or Google login
//   - [AudioFile] : One stored clip, either an original upload or the transformed result
//
// Read models:
//   - [AudioPair] : An original joined to its transformed clip, as shown in the studio gallery
//
// A transformed [AudioFile] links back to its original through PairID; originals never carry a PairID.
//
// All persistent entities implement the [Model] interface providing IDs, timestamps and validation.
// The [Repository] interface defines standard CRUD operations for database access.
package models
