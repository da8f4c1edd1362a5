package model

// Kind names an entity type as a step of a sync pass.
type Kind string

const (
	KindProject   Kind = "project"
	KindSection   Kind = "section"
	KindLabel     Kind = "label"
	KindTask      Kind = "task"
	KindTaskLabel Kind = "task_label"
)

// SyncOrder lists the kinds in the order a pass reconciles them. Parents
// come before the rows that reference them.
var SyncOrder = []Kind{KindProject, KindSection, KindLabel, KindTask, KindTaskLabel}
