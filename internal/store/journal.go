package store

import "github.com/tamtunnel/spacecomms/internal/model"

type journalKind string

const (
	journalCDM            journalKind = "cdm"
	journalCDMWithdraw    journalKind = "cdm_withdraw"
	journalObject         journalKind = "object"
	journalObjectWithdraw journalKind = "object_withdraw"
	journalManeuver       journalKind = "maneuver"
)

// journalEntry is one append-only log record (spec §6 "Persisted state
// layout": append-only log segments per record class plus a checkpoint).
type journalEntry struct {
	Kind     journalKind    `json:"kind"`
	CDM      *model.CDM     `json:"cdm,omitempty"`
	Object   *model.Object  `json:"object,omitempty"`
	Maneuver *model.Maneuver `json:"maneuver,omitempty"`
}

// Journal is the write side of file-backed storage. A nil Journal means
// memory-only (the default, spec §6 storage.type=memory).
type Journal interface {
	Append(entry journalEntry) error
}
