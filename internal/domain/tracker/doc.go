// Package tracker follows tabs and windows through their lifecycle.
//
// A tab is unseen until its created event, creating until it either loads a
// real page or exhausts its settle retries, and then settled as new or initial
// content. Initial tabs belong to a window that was just opened or restored
// and are never aggregated. The session also keeps the restore-burst guard
// and the focus history used by the recent comparer.
package tracker
