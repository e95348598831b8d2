// Package owid fetches the carbon-intensity-of-electricity indicator from the
// Our World in Data statistics API. The indicator comes as two documents: a
// data document of parallel (values, years, entities) arrays and a metadata
// document describing each entity.
package owid

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/meridian-network/carbonx/pkg/utils"
)

// Entity is one named region in the indicator's metadata. Continents and
// economic blocs share the entity table with countries but carry no ISO code.
type Entity struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// DataDocument holds the indicator's observations as parallel arrays aligned
// by index: values[i] was observed for entities[i] in years[i].
type DataDocument struct {
	Values   []float64 `json:"values"`
	Years    []int     `json:"years"`
	Entities []int     `json:"entities"`
}

// MetadataDocument carries the entity dimension of the indicator.
type MetadataDocument struct {
	Dimensions struct {
		Entities struct {
			Values []Entity `json:"values"`
		} `json:"entities"`
	} `json:"dimensions"`
}

// Dataset is one fetched indicator: observations plus an entity lookup.
type Dataset struct {
	Data     DataDocument
	Entities map[int]Entity
}

// Client fetches indicator documents from the statistics API.
type Client struct {
	baseURL     string
	indicatorID string
	client      *http.Client
}

// Opts is the set of options for a new Client.
type Opts struct {
	BaseURL     string
	IndicatorID string
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// NewWithOpts creates a new Client with the given options.
func NewWithOpts(o Opts) *Client {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	client := o.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: o.Timeout}
	} else if client.Timeout == 0 {
		client.Timeout = o.Timeout
	}
	return &Client{
		baseURL:     o.BaseURL,
		indicatorID: o.IndicatorID,
		client:      client,
	}
}

// NewFromEnv builds a Client from OWID_API_URL / OWID_INDICATOR_ID.
func NewFromEnv() *Client {
	return NewWithOpts(Opts{
		BaseURL:     utils.Env("OWID_API_URL", "https://api.ourworldindata.org"),
		IndicatorID: utils.Env("OWID_INDICATOR_ID", "1068001"),
	})
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		_ = utils.DrainAndClose(resp.Body)
		return fmt.Errorf("http %d for %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		_ = utils.DrainAndClose(resp.Body)
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return utils.DrainAndClose(resp.Body)
}

// CarbonIntensity fetches the indicator's data and metadata documents and
// returns them as one dataset. Misaligned parallel arrays are a contract
// violation on the provider side and surface as an error.
func (c *Client) CarbonIntensity(ctx context.Context) (*Dataset, error) {
	var data DataDocument
	if err := c.getJSON(ctx, fmt.Sprintf("/v1/indicators/%s.data.json", c.indicatorID), &data); err != nil {
		return nil, fmt.Errorf("fetch carbon intensity data: %w", err)
	}
	if len(data.Values) != len(data.Years) || len(data.Values) != len(data.Entities) {
		return nil, fmt.Errorf("misaligned indicator arrays: %d values, %d years, %d entities",
			len(data.Values), len(data.Years), len(data.Entities))
	}

	var meta MetadataDocument
	if err := c.getJSON(ctx, fmt.Sprintf("/v1/indicators/%s.metadata.json", c.indicatorID), &meta); err != nil {
		return nil, fmt.Errorf("fetch carbon intensity metadata: %w", err)
	}

	entities := make(map[int]Entity, len(meta.Dimensions.Entities.Values))
	for _, e := range meta.Dimensions.Entities.Values {
		entities[e.ID] = e
	}

	return &Dataset{Data: data, Entities: entities}, nil
}
