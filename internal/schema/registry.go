package schema

import "fmt"

// VenueID is the numeric identifier for a venue.
type VenueID uint16

// InstrumentID is the numeric identifier for an instrument.
type InstrumentID uint32

// Venue describes a trading venue or broker.
type Venue struct {
	ID   VenueID
	Name string
}

// Instrument describes a tradable instrument. Immutable once registered.
type Instrument struct {
	ID         InstrumentID
	VenueID    VenueID
	Symbol     string
	PriceScale Scale
	QtyScale   Scale
	TickSize   Price
	LotSize    Quantity
	Tradable   bool
}

// Def converts the instrument to its wire payload form.
func (i Instrument) Def() InstrumentDef {
	def := InstrumentDef{
		ID:         i.ID,
		VenueID:    i.VenueID,
		PriceScale: i.PriceScale,
		QtyScale:   i.QtyScale,
		TickSize:   i.TickSize,
		LotSize:    i.LotSize,
	}
	if i.Tradable {
		def.Tradable = 1
	}
	def.SetSymbol(i.Symbol)
	return def
}

// Registry stores venue and instrument mappings in a compact form.
type Registry struct {
	venues           []Venue
	instruments      []Instrument
	venueByName      map[string]VenueID
	instrumentByName map[string]InstrumentID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		venueByName:      make(map[string]VenueID),
		instrumentByName: make(map[string]InstrumentID),
	}
}

// AddVenue registers a new venue and returns its ID.
func (r *Registry) AddVenue(name string) (VenueID, error) {
	if name == "" {
		return 0, fmt.Errorf("venue name is empty")
	}
	if id, ok := r.venueByName[name]; ok {
		return id, fmt.Errorf("venue already exists: %s", name)
	}
	id := VenueID(len(r.venues) + 1)
	r.venues = append(r.venues, Venue{ID: id, Name: name})
	r.venueByName[name] = id
	return id, nil
}

// AddInstrument registers a new instrument and returns its ID.
func (r *Registry) AddInstrument(inst Instrument) (InstrumentID, error) {
	if inst.Symbol == "" {
		return 0, fmt.Errorf("instrument symbol is empty")
	}
	if inst.VenueID == 0 {
		return 0, fmt.Errorf("venue id is invalid")
	}
	if _, ok := r.Venue(inst.VenueID); !ok {
		return 0, fmt.Errorf("venue id not found: %d", inst.VenueID)
	}
	if id, ok := r.instrumentByName[inst.Symbol]; ok {
		return id, fmt.Errorf("instrument already exists: %s", inst.Symbol)
	}
	if inst.PriceScale < 0 || inst.QtyScale < 0 {
		return 0, fmt.Errorf("instrument scale must be >= 0: %s", inst.Symbol)
	}
	if inst.TickSize <= 0 {
		return 0, fmt.Errorf("instrument tick size must be > 0: %s", inst.Symbol)
	}
	if inst.LotSize <= 0 {
		return 0, fmt.Errorf("instrument lot size must be > 0: %s", inst.Symbol)
	}
	inst.ID = InstrumentID(len(r.instruments) + 1)
	r.instruments = append(r.instruments, inst)
	r.instrumentByName[inst.Symbol] = inst.ID
	return inst.ID, nil
}

// Venue returns the venue by ID.
func (r *Registry) Venue(id VenueID) (Venue, bool) {
	if id == 0 || int(id) > len(r.venues) {
		return Venue{}, false
	}
	return r.venues[id-1], true
}

// Instrument returns the instrument by ID.
func (r *Registry) Instrument(id InstrumentID) (Instrument, bool) {
	if id == 0 || int(id) > len(r.instruments) {
		return Instrument{}, false
	}
	return r.instruments[id-1], true
}

// InstrumentCount returns the number of instruments in the registry.
func (r *Registry) InstrumentCount() int {
	return len(r.instruments)
}

// InstrumentAt returns the instrument by zero-based index.
func (r *Registry) InstrumentAt(index int) (Instrument, bool) {
	if index < 0 || index >= len(r.instruments) {
		return Instrument{}, false
	}
	return r.instruments[index], true
}

// VenueIDByName returns the venue ID for a name.
func (r *Registry) VenueIDByName(name string) (VenueID, bool) {
	id, ok := r.venueByName[name]
	return id, ok
}

// InstrumentIDBySymbol returns the instrument ID for a symbol.
func (r *Registry) InstrumentIDBySymbol(symbol string) (InstrumentID, bool) {
	id, ok := r.instrumentByName[symbol]
	return id, ok
}
