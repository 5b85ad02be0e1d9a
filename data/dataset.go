package data

// Dataset is the side channel a data source fills while loading: how many
// classes there are and what they are called.
type Dataset struct {
	NumClasses int      `json:"num_classes" yaml:"num_classes"`
	Classes    []string `json:"classes,omitempty" yaml:"classes,omitempty"`
	// Samples is the number of samples produced by the last LoadData.
	Samples int `json:"samples" yaml:"samples"`
}

// SetClasses records the class names and their count. A nil ds is ignored.
func (ds *Dataset) SetClasses(classes []string) {
	if ds == nil {
		return
	}
	ds.Classes = append([]string(nil), classes...)
	ds.NumClasses = len(classes)
}

func (ds *Dataset) setSamples(n int) {
	if ds != nil {
		ds.Samples = n
	}
}
