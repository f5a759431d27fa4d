package cli

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/aretw0/osdl/pkg/adapters/process"
	"github.com/aretw0/osdl/pkg/domain"
	"github.com/aretw0/osdl/pkg/dsl"
	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// SamplePages returns the pages written by Scaffold.
func SamplePages() []*domain.Page {
	home := dsl.New("home").
		Title("Welcome").
		Add(
			dsl.Section("hero").Children(
				dsl.Atom("greeting").Type("Text").
					Param("text", "Hello {{ user.name || 'stranger' }}"),
				dsl.Atom("admin-hint").Type("Text").
					Param("text", "You are browsing as an administrator").
					When("user.role", domain.OpEquals, "admin"),
			),
			dsl.Component("counter").Type("Button").
				State(map[string]any{"count": 0}).
				Param("label", "Clicked {{ state.count }} times").
				On(domain.EventClick, dsl.UpdateState(map[string]any{"count": "{{ state.count + 1 }}"})),
		).
		MustBuild()

	catalog := dsl.New("catalog").
		Title("Catalog").
		Add(
			dsl.Component("filters").Type("Select").
				State(map[string]any{"category": "all"}).
				On(domain.EventChange, dsl.UpdateNodeState("grid", map[string]any{"page": 0})),
			dsl.Component("grid").Type("Grid").
				State(map[string]any{"page": 0}).
				Require(dsl.MockData("products", "products",
					dsl.Blocking(),
					dsl.Vars(map[string]any{"limit": 10}),
				)).
				Loading("skeleton", "Loading products").
				Param("total", "{{ nodeData.products.length }}").
				Repeat("nodeData.products", dsl.Atom("card").Type("Card").
					Param("title", "{{ item.name }}").
					Param("price", "{{ item.price.toFixed(2) }}").
					On(domain.EventClick, dsl.Dispatch("addToCart", map[string]any{"sku": "{{ item.sku }}"}))),
		).
		MustBuild()

	return []*domain.Page{home, catalog}
}

var sampleFixtures = map[string]any{
	"products": []any{
		map[string]any{"sku": "mug-1", "name": "Mug", "price": 9.5},
		map[string]any{"sku": "cap-1", "name": "Cap", "price": 14},
		map[string]any{"sku": "tee-1", "name": "T-Shirt", "price": 21.9},
	},
}

var sampleActions = process.ConfigFile{
	Actions: []process.ProcessConfig{{
		Action:      "addToCart",
		Command:     "sh",
		Args:        []string{"-c", `echo "added $OSDL_PARAM_SKU" >&2`},
		Timeout:     "5s",
		Description: "Logs cart additions",
	}},
}

// Scaffold writes sample pages, mockData fixtures and an actions file into
// dir. Existing files are left untouched unless force is set.
func Scaffold(dir string, force bool) ([]string, error) {
	files := map[string][]byte{}
	for _, p := range SamplePages() {
		data, err := yaml.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encode page %s: %w", p.ID, err)
		}
		files[filepath.Join("pages", p.ID+".yaml")] = data
	}
	fixtures, err := json.MarshalIndent(sampleFixtures, "", "  ")
	if err != nil {
		return nil, err
	}
	files["fixtures.json"] = fixtures
	actions, err := yaml.Marshal(sampleActions)
	if err != nil {
		return nil, err
	}
	files["actions.yaml"] = actions

	var written []string
	for _, name := range slices.Sorted(maps.Keys(files)) {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil && !force {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return written, err
		}
		if err := os.WriteFile(path, files[name], 0o644); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}
