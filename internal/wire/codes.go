package wire

// Flag identifies a frame's role within a request/confirm/indication
// exchange. It occupies the low two bits of the on-wire code field.
type Flag uint16

const (
	FlagREQ Flag = 0
	FlagCNF Flag = 1
	FlagIND Flag = 2
	FlagRSP Flag = 3
)

func (f Flag) String() string {
	switch f {
	case FlagREQ:
		return "REQ"
	case FlagCNF:
		return "CNF"
	case FlagIND:
		return "IND"
	case FlagRSP:
		return "RSP"
	default:
		return "?"
	}
}

// MsgType is the message-type id carried in the remaining bits of the
// on-wire code field.
type MsgType uint16

const (
	MsgError         MsgType = 0x000
	MsgInit          MsgType = 0x001
	MsgEnum          MsgType = 0x002
	MsgLookupDoc     MsgType = 0x003
	MsgStat          MsgType = 0x005
	MsgPeek          MsgType = 0x006
	MsgUpdate        MsgType = 0x009
	MsgResume        MsgType = 0x00a
	MsgRead          MsgType = 0x00b
	MsgTrunc         MsgType = 0x00c
	MsgWriteBuffer   MsgType = 0x00d
	MsgWriteCommit   MsgType = 0x00e
	MsgGetType       MsgType = 0x011
	MsgCommit        MsgType = 0x016
	MsgSuspend       MsgType = 0x017
	MsgClose         MsgType = 0x018
	MsgWatchAdd      MsgType = 0x019
	MsgWatchRem      MsgType = 0x01a
	MsgWatchProgress MsgType = 0x01b
	MsgReplicateDoc  MsgType = 0x020
	MsgMount         MsgType = 0x022
	MsgUnmount       MsgType = 0x023
	MsgGetPath       MsgType = 0x024
	MsgWatch         MsgType = 0x025
	MsgProgressStart MsgType = 0x026
	MsgProgress      MsgType = 0x027
	MsgProgressEnd   MsgType = 0x028
	MsgProgressQuery MsgType = 0x029
	MsgWalkPath      MsgType = 0x02a
	MsgGetData       MsgType = 0x02b
	MsgSetData       MsgType = 0x02c
	MsgGetLinks      MsgType = 0x02d
)

var msgTypeNames = map[MsgType]string{
	MsgError:         "Error",
	MsgInit:          "Init",
	MsgEnum:          "Enum",
	MsgLookupDoc:     "LookupDoc",
	MsgStat:          "Stat",
	MsgPeek:          "Peek",
	MsgUpdate:        "Update",
	MsgResume:        "Resume",
	MsgRead:          "Read",
	MsgTrunc:         "Trunc",
	MsgWriteBuffer:   "WriteBuffer",
	MsgWriteCommit:   "WriteCommit",
	MsgGetType:       "GetType",
	MsgCommit:        "Commit",
	MsgSuspend:       "Suspend",
	MsgClose:         "Close",
	MsgWatchAdd:      "WatchAdd",
	MsgWatchRem:      "WatchRem",
	MsgWatchProgress: "WatchProgress",
	MsgReplicateDoc:  "ReplicateDoc",
	MsgMount:         "Mount",
	MsgUnmount:       "Unmount",
	MsgGetPath:       "GetPath",
	MsgWatch:         "Watch",
	MsgProgressStart: "ProgressStart",
	MsgProgress:      "Progress",
	MsgProgressEnd:   "ProgressEnd",
	MsgProgressQuery: "ProgressQuery",
	MsgWalkPath:      "WalkPath",
	MsgGetData:       "GetData",
	MsgSetData:       "SetData",
	MsgGetLinks:      "GetLinks",
}

func (m MsgType) String() string {
	if s, ok := msgTypeNames[m]; ok {
		return s
	}
	return "unknown"
}
