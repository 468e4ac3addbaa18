package models

// Capability tags understood by the built-in executors.
const (
	CapabilityOperations = "operations"
	CapabilityPassenger  = "passenger"
	CapabilityCrowd      = "crowd"
	CapabilityAlert      = "alert"
	CapabilityExtraction = "extraction"
	CapabilityValidation = "validation"
)

// KnownCapabilities returns the built-in capability tags in display order.
func KnownCapabilities() []string {
	return []string{
		CapabilityOperations,
		CapabilityPassenger,
		CapabilityCrowd,
		CapabilityAlert,
		CapabilityExtraction,
		CapabilityValidation,
	}
}

// IsKnownCapability returns true if tag names a built-in executor.
func IsKnownCapability(tag string) bool {
	for _, c := range KnownCapabilities() {
		if c == tag {
			return true
		}
	}
	return false
}
