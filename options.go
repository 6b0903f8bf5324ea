package metatree

// IterOpt configures flat iteration over a model.
type IterOpt struct {
	IncludeData bool // include bulk-array descriptor leaves
	PrimaryOnly bool // only leaves bound to the primary flat section
}

// UpdateOpt configures Model.Update.
type UpdateOpt struct {
	IncludeData bool // also transfer bulk-array descriptor leaves
	PrimaryOnly bool // only transfer leaves bound to the primary flat section
}

// SearchOpt configures schema search output.
type SearchOpt struct {
	Verbose bool // full description instead of the first line
}
