package scanner

// Mutator edits a private copy of a State during CompareAndUpdate.
// DeviceID, Version and LastScanAt are owned by the registry and are
// overwritten after the mutator runs.
type Mutator func(*State)

// AssociateUI binds the device to a UI instance. Mode and location are
// left unchanged. Re-associating replaces the previous binding.
func AssociateUI(uiInstanceID string) Mutator {
	return func(s *State) {
		s.AssociatedUIID = &uiInstanceID
	}
}

// DisassociateUI clears the UI binding.
func DisassociateUI() Mutator {
	return func(s *State) {
		s.AssociatedUIID = nil
	}
}

// SetLocation sets the device's current location.
func SetLocation(locationID string) Mutator {
	return func(s *State) {
		s.CurrentLocationID = &locationID
	}
}

// ClearLocation removes the current location.
func ClearLocation() Mutator {
	return func(s *State) {
		s.CurrentLocationID = nil
	}
}

// SetMode changes the scan mode.
func SetMode(m Mode) Mutator {
	return func(s *State) {
		s.Mode = m
	}
}

// Touch changes nothing; applying it records an accepted scan by
// refreshing LastScanAt and bumping Version.
func Touch() Mutator {
	return func(*State) {}
}
