// Package pattern compiles user URL patterns and keeps them current.
//
// Compile never fails loudly: blank or malformed patterns come back as a
// nil *Matcher, which matches nothing. Patterns use ECMAScript syntax
// (regexp2) because users write them for the browser, and are matched
// case-insensitively anywhere in the URL.
//
// Cache binds one option key to its compiled matcher and recompiles on every
// change notification from the option store.
package pattern
