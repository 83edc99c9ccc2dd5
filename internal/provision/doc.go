// Package provision implements the cook pipeline: everything that happens
// between parsing the command line and chef-solo exiting on the target.
//
// A run moves through a fixed sequence of states:
//
//	Init → Validated → VersionChecked → NodeConfigReady → Synced → Patched → Ran → Done
//
// and ends in Failed as soon as any step fails. The version check is
// skipped (VersionChecked is still entered) with --skip-chef-check, and Ran
// is never entered with --sync-only.
//
// The pipeline talks to the outside world only through the Transport,
// KitchenInspector and NodeConfigGenerator interfaces, and never exits the
// process: failures come back as *StepError values whose Class the CLI
// turns into an exit code.
package provision
