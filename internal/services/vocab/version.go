package vocab

// Version identifies a dashboard release line.
type Version string

const (
	// Default holds entries that apply to every version without an override.
	Default Version = ""
	V16     Version = "1.6"
	V17     Version = "1.7"
)

// TaskStyle is the markup the tasks view is rendered with.
type TaskStyle string

const (
	// TaskStyleLegacy renders tasks as rows of a single <table>.
	TaskStyleLegacy TaskStyle = "legacy"
	// TaskStyleCurrent renders each task as an <article class="task">.
	TaskStyleCurrent TaskStyle = "current"
)

// TaskStyle returns the tasks markup used by v. Unknown versions get the
// legacy table.
func (v Version) TaskStyle() TaskStyle {
	if v == V17 {
		return TaskStyleCurrent
	}
	return TaskStyleLegacy
}
