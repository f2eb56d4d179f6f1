package annotate

// Standard priority levels for contributions.
// Lower values take precedence during scalar resolution.
const (
	// PriorityCommandLine is used for override assignments supplied to the
	// evaluator (command line or override files).
	PriorityCommandLine = 10

	// PriorityForce is the level conventionally paired with HintForce.
	PriorityForce = 50

	// PriorityNormal is the default for module contributions.
	PriorityNormal = 100

	// PriorityDefault is for soft defaults a module expects others to
	// override.
	PriorityDefault = 1000

	// PriorityOptionDefault is the priority attributed to registry defaults
	// in provenance records.
	PriorityOptionDefault = 1500
)

// PriorityName returns a symbolic name for standard levels.
func PriorityName(p int) string {
	switch p {
	case PriorityCommandLine:
		return "command-line"
	case PriorityForce:
		return "force"
	case PriorityNormal:
		return "normal"
	case PriorityDefault:
		return "default"
	case PriorityOptionDefault:
		return "option-default"
	default:
		return "custom"
	}
}
