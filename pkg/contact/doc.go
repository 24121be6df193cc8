// Package contact decides how a profile is reached from the composer.
//
// It has three jobs: find the site's internal messaging identifier in the
// structured data embedded in a profile page, derive a best-effort email
// address from a row's name and company, and put the composer on the right
// channel before anything is typed. The channel step is the piece most likely
// to break when the site changes its interface, so it lives here alone.
package contact
