package mcpserver

// PolicyRules describes how each retention job decides what to act on.
// It is served as a resource so an LLM client can explain a decision.
const PolicyRules = `# Seedkeeper Retention Policies

Every job evaluates its entities in the same order. The first rule that
matches excludes the entity and clears its strike history; an entity that
passes every rule receives a strike.

1. **Protected tag.** Torrents carrying the protected tag are never touched.
2. **Completion.** delete_forgotten only considers torrents that finished
   downloading and have seeded for at least min_seeding_days.
3. **Trackers.** delete_not_working_trackers only considers torrents whose
   every real tracker reports "Not working". DHT, PeX and LSD entries are
   ignored. A torrent with no real trackers is excluded.
4. **Library link.** Content with a hard link under the media root is in
   use by the library and is excluded. Orphaned directories skip this rule
   and must be empty instead.
5. **Claimed paths.** delete_orphaned only considers files and directories
   under the torrents root that no torrent claims.

## Strikes

A strike is recorded once per pass. An entity becomes eligible once it has
at least required_strikes strikes spread over at least min_strike_days
consecutive calendar days. Its history is cleared when it fires, so a
second action needs a fresh run of strikes.

An evaluation that fails (client or filesystem error) is skipped: it
neither strikes nor clears history.

## Actions

- ` + "`test`" + `: log and notify only.
- ` + "`stop`" + `: pause the torrent (not available to delete_orphaned).
- ` + "`delete`" + `: remove the torrent, and its files unless another
  torrent that is not being deleted shares the content path.
`
