/*
Package database implements the transactional key-value store shared by the
modules of a federation node.

A Database owns exactly one backend (see Kind) and hands out two kinds of
transactions:

  - ReadTx, pinned to the snapshot that was latest when it began. It never
    blocks on writers and never observes their later commits.
  - WriteTx, rooted at the latest snapshot. At most one is live at a time;
    BeginWrite waits for the previous one to finish.

Modules never touch raw keys. Each module is configured with a fixed key
prefix (see Namespaces) and works through a Handle that prefixes every key
it is given. Several handles over one WriteTx commit together, which is how
a decided batch that touches several modules is applied atomically.

Every commit that changes state produces the next version, gapless, and a
new immutable snapshot. A commit whose writes change nothing leaves the
version as it is. Older snapshots are kept only while a transaction still
references them.
*/
package database
