// Package password issues and checks the single-use tokens embedded in
// password reset links.
package password
