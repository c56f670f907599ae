package model

import "time"

// Object is a scripted object registered with the driver. Source is a
// JavaScript program whose top-level functions are the object's methods;
// callouts address them by name.
type Object struct {
	ID        uint16    `json:"id"`
	GUID      string    `json:"guid"`
	Name      string    `json:"name"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}
