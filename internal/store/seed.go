package store

import (
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/cielo-abierto/internal/localstore"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/model"
)

func intPtr(v int) *int { return &v }
func floatPtr(v float64) *float64 { return &v }

// seedEvents is the built-in catalog of a fresh local store.
func seedEvents() []model.Event {
	return []model.Event{
		{
			ID:       "1",
			Title:    "Observación de Júpiter y Saturno",
			Date:     model.EventDate{Day: "12", Month: "OCT"},
			Location: "Desierto de Atacama, Chile",
			Time:     "22:00 - 04:00",
			Type:     model.EventBooking,
			Slots:    intPtr(5),
			Price:    floatPtr(50),
			Image:    "https://images.unsplash.com/photo-1614730341194-75c60740a07db?auto=format&fit=crop&q=80&w=1000",
		},
		{
			ID:       "2",
			Title:    "Expedición: Lluvia de Estrellas",
			Date:     model.EventDate{Day: "15", Month: "NOV"},
			Location: "Parque Nacional del Teide",
			Time:     "23:00 - 05:00",
			Type:     model.EventBooking,
			Slots:    intPtr(12),
			Price:    floatPtr(75),
			Image:    "https://images.unsplash.com/photo-1519681393784-d120267933ba?auto=format&fit=crop&q=80&w=1000",
		},
		{
			ID:          "101",
			Title:       "Despegue Starship Flight 6",
			Date:        model.EventDate{Day: "20", Month: "ENE"},
			Location:    "Starbase, Texas",
			Time:        "14:00 UTC",
			Type:        model.EventRealtime,
			Description: "SpaceX intenta su sexto vuelo de prueba con el cohete más grande de la historia.",
			Image:       "https://images.unsplash.com/photo-1517976487492-5750f3195933?auto=format&fit=crop&q=80&w=1000",
			SourceURL:   "https://www.spacex.com/launches/",
		},
		{
			ID:          "102",
			Title:       "Eclipse Solar Parcial",
			Date:        model.EventDate{Day: "17", Month: "FEB"},
			Location:    "Hemisferio Sur",
			Time:        "10:30 UTC",
			Type:        model.EventRealtime,
			Description: "Un eclipse parcial será visible desde la Antártida y partes del sur de América.",
			Image:       "https://images.unsplash.com/photo-1532693322450-2cb5c511067d?auto=format&fit=crop&q=80&w=1000",
			SourceURL:   "https://science.nasa.gov/eclipses/",
		},
	}
}

func seedRealtime() []model.Event {
	var out []model.Event
	for _, e := range seedEvents() {
		if e.Kind() == model.EventRealtime {
			out = append(out, e)
		}
	}
	return out
}

// SchemaVersion is the version the local store is migrated to.
const SchemaVersion = 2

type migration struct {
	version int
	name    string
	apply   func(kv localstore.KV) error
}

var localMigrations = []migration{
	{version: 1, name: "seed catalog", apply: seedCatalog},
	{version: 2, name: "merge realtime events", apply: mergeRealtime},
}

// seedCatalog writes the built-in catalog when no events are stored yet.
func seedCatalog(kv localstore.KV) error {
	var events []model.Event
	ok, err := localstore.GetJSON(kv, localstore.KeyEvents, &events)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return localstore.SetJSON(kv, localstore.KeyEvents, seedEvents())
}

// mergeRealtime adds the realtime seed events missing from stores created
// before realtime events existed, keeping everything already stored.
func mergeRealtime(kv localstore.KV) error {
	var events []model.Event
	if _, err := localstore.GetJSON(kv, localstore.KeyEvents, &events); err != nil {
		return err
	}
	have := make(map[model.ID]bool, len(events))
	for _, e := range events {
		have[e.ID] = true
	}
	added := 0
	for _, e := range seedRealtime() {
		if !have[e.ID] {
			events = append(events, e)
			added++
		}
	}
	if added == 0 {
		return nil
	}
	return localstore.SetJSON(kv, localstore.KeyEvents, events)
}

func storedVersion(kv localstore.KV) (int, error) {
	raw, ok, err := kv.Get(localstore.KeySchemaVersion)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("schema version %q: %w", raw, err)
	}
	return v, nil
}

// migrate runs every migration newer than the stored version, recording the
// version after each step.
func migrate(kv localstore.KV, log *zap.Logger) error {
	current, err := storedVersion(kv)
	if err != nil {
		return err
	}
	for _, m := range localMigrations {
		if m.version <= current {
			continue
		}
		if err := m.apply(kv); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		if err := kv.Set(localstore.KeySchemaVersion, strconv.Itoa(m.version)); err != nil {
			return fmt.Errorf("record schema version %d: %w", m.version, err)
		}
		log.Info("local store migrated", zap.Int("version", m.version), zap.String("migration", m.name))
	}
	return nil
}
