// Package news serves the curated space-news list shown on the home page.
package news

import (
	"context"
	"time"

	"github.com/Shivanand-hulikatti/cielo-abierto/internal/localstore"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/model"
)

// Feed returns the curated news, newest first.
type Feed struct {
	latency localstore.Latency
	now     func() time.Time
}

// NewFeed constructs a Feed. A nil now uses time.Now.
func NewFeed(latency localstore.Latency, now func() time.Time) *Feed {
	if now == nil {
		now = time.Now
	}
	return &Feed{latency: latency, now: now}
}

// Latest returns the news items dated relative to the current day.
func (f *Feed) Latest(ctx context.Context) ([]model.NewsItem, error) {
	if err := f.latency.Wait(ctx); err != nil {
		return nil, err
	}
	now := f.now().UTC()
	day := 24 * time.Hour
	return []model.NewsItem{
		{
			ID:      1,
			Title:   "El Telescopio James Webb descubre una galaxia 'imposible'",
			Date:    now,
			Excerpt: "El JWST ha observado una galaxia que parece ser más antigua de lo que los modelos cosmológicos actuales permiten, desafiando nuestra comprensión del Big Bang.",
			Image:   "https://images.unsplash.com/photo-1462331940025-496dfbfc7564?q=80&w=1000&auto=format&fit=crop",
			Source:  "NASA/ESA",
			URL:     "https://www.nasa.gov/webbfirstimages",
		},
		{
			ID:      2,
			Title:   "SpaceX prepara el lanzamiento del Starship IFT-6",
			Date:    now.Add(-day),
			Excerpt: "Tras el éxito de la captura del propulsor Super Heavy, SpaceX acelera los preparativos para el siguiente vuelo de prueba desde Starbase.",
			Image:   "https://images.unsplash.com/photo-1517976487492-5750f3195933?q=80&w=1000&auto=format&fit=crop",
			Source:  "SpaceX News",
			URL:     "https://www.spacex.com/updates",
		},
		{
			ID:      3,
			Title:   "Lluvia de meteoros Oriónidas alcanza su punto máximo",
			Date:    now.Add(-2 * day),
			Excerpt: "Este fin de semana se podrá observar el pico de actividad de las Oriónidas, restos del famoso cometa Halley iluminando el cielo nocturno.",
			Image:   "https://images.unsplash.com/photo-1419242902214-272b3f66ee7a?q=80&w=1000&auto=format&fit=crop",
			Source:  "National Geographic",
			URL:     "https://www.nationalgeographic.com/science/space",
		},
		{
			ID:      4,
			Title:   "Descubrimiento de Exoplaneta en Zona Habitable",
			Date:    now.Add(-3 * day),
			Excerpt: "Astrónomos identifican un nuevo exoplaneta con condiciones similares a la Tierra orbitando una enana roja cercana.",
			Image:   "https://images.unsplash.com/photo-1545156521-77bd85671d30?q=80&w=1000&auto=format&fit=crop",
			Source:  "ESO",
			URL:     "https://www.eso.org/public/",
		},
	}, nil
}
