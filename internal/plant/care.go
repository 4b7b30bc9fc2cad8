package plant

// LightRequirement describes how much direct sun a species tolerates.
type LightRequirement string

const (
	LightFullSun      LightRequirement = "full_sun"
	LightPartialSun   LightRequirement = "partial_sun"
	LightPartialShade LightRequirement = "partial_shade"
	LightFullShade    LightRequirement = "full_shade"
)

// Valid reports whether l is one of the known light levels.
func (l LightRequirement) Valid() bool {
	switch l {
	case LightFullSun, LightPartialSun, LightPartialShade, LightFullShade:
		return true
	}
	return false
}

// Difficulty is a coarse care difficulty rating.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is one of the known ratings.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// CareProfile is the catalog's care guidance for a species.
type CareProfile struct {
	LightRequirement         LightRequirement  `json:"light_requirement" yaml:"light_requirement"`
	WaterFrequencyDays       int               `json:"water_frequency_days" yaml:"water_frequency_days"`
	TemperatureMinC          float64           `json:"temperature_min_c" yaml:"temperature_min_c"`
	TemperatureMaxC          float64           `json:"temperature_max_c" yaml:"temperature_max_c"`
	SoilType                 string            `json:"soil_type" yaml:"soil_type"`
	FertilizerFrequencyDays  int               `json:"fertilizer_frequency_days" yaml:"fertilizer_frequency_days"`
	RepottingFrequencyMonths int               `json:"repotting_frequency_months" yaml:"repotting_frequency_months"`
	Difficulty               Difficulty        `json:"difficulty" yaml:"difficulty"`
	Toxicity                 []string          `json:"toxicity" yaml:"toxicity"`
	ExpertTips               []string          `json:"expert_tips" yaml:"expert_tips"`
	Troubleshooting          []Troubleshooting `json:"troubleshooting" yaml:"troubleshooting"`
}

// Troubleshooting pairs a common problem with its symptoms and fixes.
type Troubleshooting struct {
	Problem   string   `json:"problem" yaml:"problem"`
	Symptoms  []string `json:"symptoms" yaml:"symptoms"`
	Solutions []string `json:"solutions" yaml:"solutions"`
}

// Clone returns a deep copy of c. A nil receiver returns nil.
func (c *CareProfile) Clone() *CareProfile {
	if c == nil {
		return nil
	}
	out := *c
	out.Toxicity = cloneStrings(c.Toxicity)
	out.ExpertTips = cloneStrings(c.ExpertTips)
	if c.Troubleshooting != nil {
		out.Troubleshooting = make([]Troubleshooting, len(c.Troubleshooting))
		for i, t := range c.Troubleshooting {
			out.Troubleshooting[i] = Troubleshooting{
				Problem:   t.Problem,
				Symptoms:  cloneStrings(t.Symptoms),
				Solutions: cloneStrings(t.Solutions),
			}
		}
	}
	return &out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
