// Package kitchen inspects the local Chef-solo kitchen: the directory tree
// that gets synchronized to the target host.
//
// It checks that the expected layout is present, reads the chefignore file,
// computes the ordered exclusion rules handed to rsync, and can scaffold a
// fresh kitchen for the init command.
package kitchen
