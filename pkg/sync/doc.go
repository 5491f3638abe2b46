/*
The sync package implements dirsync's synchronization algorithm. It converges
a group of directory trees onto whichever of them was modified most recently.

There are three building blocks:
1) SelectFreshest -- Picks the authoritative directory in a group: the one
   holding the single most recently modified file that isn't ignored.
2) Mirror -- A one-directional pass from a source tree to a destination tree.
   Files that are missing or older in the destination are copied over. When
   deletion is enabled, destination files that no longer exist in the source
   are removed. Nothing is ever discarded: every file that would be
   overwritten or removed is first moved into a backup tree next to the
   destination, at `.backup/<run timestamp>/<destination name>/`.
3) SyncPair, SyncFlat and SyncGrouped -- Sequence the passes over a whole
   group. The freshest directory is mirrored onto every other directory with
   deletion enabled, and then every other directory is mirrored back onto the
   freshest one with deletion disabled. The second phase picks up files that
   only existed on a follower.

Modification times are compared at whole-second precision, since not every
filesystem keeps sub-second timestamps across copies.

Failures on a single file are logged and counted, but never abort a pass.
Only problems with a whole directory (it doesn't exist, or nothing in the
group can be synchronized) are returned as errors.
*/
package sync
