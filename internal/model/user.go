package model

import "time"

// HostCollege is the institution whose students must also supply a branch
// and roll number before their profile counts as complete.
const HostCollege = "Thakur College of Engineering and Technology"

// User represents a registrant as stored in the `users` table.  A user is
// keyed twice: by the identity provider's id (ExternalID) and by email.
// Both columns are unique; email is the durable merge key when the
// identity provider hands out a new id for an existing person.
//
// Fields:
//  ID          – primary key identifier.
//  ExternalID  – identity provider user id (Clerk), unique.
//  Email       – unique email address.
//  FullName    – display name.
//  FirstName, LastName, ImageURL – profile data mirrored from the provider.
//  Phone, College, YearOfStudy, RollNumber, Branch – profile completion fields.
type User struct {
    ID          uint64    `json:"id"`
    ExternalID  string    `json:"clerkUserId"`
    Email       string    `json:"email"`
    FullName    string    `json:"fullName,omitempty"`
    FirstName   string    `json:"firstName,omitempty"`
    LastName    string    `json:"lastName,omitempty"`
    ImageURL    string    `json:"imageUrl,omitempty"`
    Phone       string    `json:"phone,omitempty"`
    College     string    `json:"college,omitempty"`
    YearOfStudy string    `json:"yearOfStudy,omitempty"`
    RollNumber  string    `json:"rollNumber,omitempty"`
    Branch      string    `json:"branch,omitempty"`
    CreatedAt   time.Time `json:"createdAt"`
    UpdatedAt   time.Time `json:"updatedAt"`
}

// ProfileComplete reports whether the registrant filled in the fields the
// event requires.  Host-college students additionally need branch and roll
// number.
func (u User) ProfileComplete() bool {
    ok := u.Phone != "" && u.College != "" && u.YearOfStudy != ""
    if u.College == HostCollege {
        ok = ok && u.Branch != "" && u.RollNumber != ""
    }
    return ok
}

// UserSummary is the slice of a user embedded in transaction responses.
type UserSummary struct {
    Email    string `json:"email"`
    FullName string `json:"fullName,omitempty"`
}
