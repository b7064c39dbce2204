package rpcbody

// Field numbering for this package follows ordinary protobuf-style schema
// design: numbers are scoped per message shape, not globally unique, since
// each Message produced by Parse is decoded independently by the caller that
// knows which shape it expects. Simple request/response bodies (Init, Peek,
// Read, ...) number their handful of fields inline at the call site in the
// client package; the shared nested shapes below recur across several RPCs
// and are factored out here so every caller agrees on one layout.

// Mount entry fields — repeated within an Enum response.
const (
	FieldMountSID      = 1
	FieldMountSrc      = 2
	FieldMountType     = 3
	FieldMountLabel    = 4
	FieldMountOptions  = 5 // repeated bytes, one per option string
	FieldMountIsSystem = 6
)

// RevInfo fields — the Stat response body.
const (
	FieldRevFlags       = 1
	FieldRevMtime       = 2 // unix nanoseconds
	FieldRevType        = 3
	FieldRevCreator     = 4
	FieldRevComment     = 5
	FieldRevParents     = 6 // repeated bytes (RevId)
	FieldRevDataHash    = 7
	FieldRevDataSize    = 8
	FieldRevAttachments = 9 // repeated nested AttachmentEntry
)

// AttachmentEntry fields — nested within RevInfo's attachment map.
const (
	FieldAttachName = 1
	FieldAttachHash = 2
	FieldAttachSize = 3
)

// Link fields — the generic on-wire (store, doc, rev, kind) tuple used
// wherever a full link (not just a Value link variant) must cross the wire:
// DocInfo entries and GetLinks results.
const (
	FieldLinkKind  = 1 // 0 = rev-link, 1 = doc-head, 2 = doc-pre-rev
	FieldLinkStore = 2
	FieldLinkDoc   = 3
	FieldLinkRev   = 4
)

// DocInfo fields — the store map and the inverse rev map.
const (
	FieldDocInfoStoreEntry = 1 // repeated nested StoreEntry
	FieldDocInfoRevEntry   = 2 // repeated nested RevEntry
)

// StoreEntry fields — one entry of DocInfo's store -> {head, pre-revs} map.
const (
	FieldStoreEntryStore      = 1
	FieldStoreEntryHeadLink   = 2 // nested Link, absent if no head on this store
	FieldStoreEntryPreRevLink = 3 // repeated nested Link
)

// RevEntry fields — one entry of DocInfo's inverse rev -> stores map.
const (
	FieldRevEntryRev          = 1
	FieldRevEntryHeadStores   = 2 // repeated bytes (store ids holding it as head)
	FieldRevEntryPreRevStores = 3 // repeated bytes (store ids holding it as pre-rev)
)

// ProgressEntry fields — ProgressQuery response entries and the
// ProgressStart/Progress/ProgressEnd indication bodies.
const (
	FieldProgTag       = 1
	FieldProgKind      = 2 // 0 = sync, 1 = replication
	FieldProgSrcStore  = 3
	FieldProgDstStore  = 4
	FieldProgItem      = 5
	FieldProgState     = 6 // 0 = running, 1 = paused, 2 = error
	FieldProgErrorCode = 7
	FieldProgErrorItem = 8
	FieldProgPermille  = 9
)

// WatchEvent fields — the Watch indication body.
const (
	FieldWatchKind    = 1 // 0 = doc target, 1 = rev target
	FieldWatchElement = 2 // doc or rev id bytes being watched
	FieldWatchEvent   = 3 // event code, see client package
	FieldWatchStore   = 4 // store on which the event occurred
)
