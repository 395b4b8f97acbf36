// Package model defines the data structures shared by every layer of the client.
// In Go, we use structs to represent our data: plain values, no inheritance.
//
// VALUES, NOT REFERENCES:
// Every view (question list, question detail, profile) holds its OWN copy of an
// entity. Methods in the cache package return copies, never pointers into their
// internal slices, so one view can never mutate another view's state by accident.
package model

import "time"

// DefaultRole is what an identity gets when the server omits the role field.
const DefaultRole = "user"

// User is the resolved identity of an account.
//
// Within one session it is immutable once fetched; it is replaced wholesale only
// by an explicit profile update (see session.Store.UpdateProfile).
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// ProfileUpdate carries the fields a user may change about themselves.
type ProfileUpdate struct {
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}
