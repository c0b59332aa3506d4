package models

// VersionTag describes a published application revision and the collections it backs up.
type VersionTag struct {
	Version     string   `json:"version"`
	Features    []string `json:"features"`
	Date        string   `json:"date"`
	Hash        string   `json:"hash"`
	Collections []string `json:"collections"`
}

// versionTable is ordered chronologically; the last entry is the current version.
var versionTable = []VersionTag{
	{
		Version:     "1.0.0",
		Features:    []string{"Client portal login", "Profile management", "Activity history"},
		Date:        "2024-01-15",
		Hash:        "a1b2c3d",
		Collections: []string{CollectionActivities, CollectionProfiles},
	},
	{
		Version:     "1.1.0",
		Features:    []string{"ROI calculator", "Document uploads"},
		Date:        "2024-03-02",
		Hash:        "e4f5a6b",
		Collections: []string{CollectionActivities, CollectionProfiles, CollectionCalculations, CollectionDocuments},
	},
	{
		Version:     "1.2.0",
		Features:    []string{"Lead tracking dashboard", "Training progress tracking", "Versioned backups"},
		Date:        "2024-05-20",
		Hash:        "c7d8e9f",
		Collections: []string{CollectionActivities, CollectionProfiles, CollectionCalculations, CollectionDocuments, CollectionLeads, CollectionTrainingProgress},
	},
}

// Versions returns a copy of the version table in chronological order.
func Versions() []VersionTag {
	out := make([]VersionTag, len(versionTable))
	for i, tag := range versionTable {
		out[i] = tag.clone()
	}
	return out
}

// CurrentVersion returns the latest published version.
func CurrentVersion() VersionTag {
	return versionTable[len(versionTable)-1].clone()
}

// LookupVersion finds a version by its tag.
func LookupVersion(version string) (VersionTag, bool) {
	for _, tag := range versionTable {
		if tag.Version == version {
			return tag.clone(), true
		}
	}
	return VersionTag{}, false
}

func (v VersionTag) clone() VersionTag {
	v.Features = append([]string(nil), v.Features...)
	v.Collections = append([]string(nil), v.Collections...)
	return v
}
