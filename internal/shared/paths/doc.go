// Package paths provides the standard per-user locations of the daemon.
//
// # Directory Structure
//
//	$XDG_CONFIG_HOME/aggregate-tabs/options.yaml   (observable options)
//	$XDG_DATA_HOME/aggregate-tabs/state.db         (tab and window store)
//
// Without XDG variables the platform defaults of os.UserConfigDir apply,
// and ~/.local/share on Linux for data.
//
// # Usage
//
//	store, err := paths.StoreFile()
//	if dir, ok := paths.DetectProfile(); ok {
//	    // Bookmarks live in dir
//	}
package paths
