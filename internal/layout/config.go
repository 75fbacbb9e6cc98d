package layout

// ButtonConfig is the persisted placement of one touch button. It is replaced
// wholesale on update.
type ButtonConfig struct {
	Position UDim2
	Size     UDim2
}

func (c ButtonConfig) IsFinite() bool {
	return c.Position.IsFinite() && c.Size.IsFinite()
}

// ConfigEntry maps button name -> config for a single user.
type ConfigEntry map[string]ButtonConfig

func (e ConfigEntry) Clone() ConfigEntry {
	dup := make(ConfigEntry, len(e))
	for name, cfg := range e {
		dup[name] = cfg
	}
	return dup
}
