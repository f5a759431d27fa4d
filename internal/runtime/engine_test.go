package runtime_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/osdl/internal/runtime"
	"github.com/aretw0/osdl/pkg/domain"
	"github.com/aretw0/osdl/pkg/orchestrator"
	"github.com/aretw0/osdl/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	mu    sync.Mutex
	calls map[string]int
	gate  chan struct{}
	data  map[string]any
}

func newCountingSource(data map[string]any) *countingSource {
	return &countingSource{calls: make(map[string]int), data: data}
}

func (s *countingSource) Fetch(ctx context.Context, src domain.SourceDescriptor) (any, error) {
	s.mu.Lock()
	s.calls[src.Query]++
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	v, ok := s.data[src.Query]
	if !ok {
		return nil, errors.New("no fixture for " + src.Query)
	}
	return v, nil
}

func (s *countingSource) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

type patchLog struct {
	mu      sync.Mutex
	patches []domain.Patch
}

func (l *patchLog) record(p domain.Patch) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.patches = append(l.patches, p)
}

func (l *patchLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.patches = nil
}

func (l *patchLog) all() []domain.Patch {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Patch(nil), l.patches...)
}

type recordingDispatcher struct {
	requests []domain.ActionRequest
}

func (d *recordingDispatcher) Dispatch(_ context.Context, req domain.ActionRequest) error {
	d.requests = append(d.requests, req)
	return nil
}

func order(f float64) *float64 { return &f }

func newEngine(t *testing.T, page *domain.Page, src ports.DataSource, cfg runtime.Config) *runtime.Engine {
	t.Helper()
	if cfg.Orchestrator == nil {
		opts := []orchestrator.Option{orchestrator.WithRetryBackoff(0)}
		if src != nil {
			opts = append(opts, orchestrator.WithSource(domain.SourceMockData, src))
		}
		cfg.Orchestrator = orchestrator.New(opts...)
	}
	e := runtime.NewEngine(page, cfg)
	t.Cleanup(e.Close)
	return e
}

func render(t *testing.T, e *runtime.Engine) *domain.Tree {
	t.Helper()
	tree, err := e.Render(context.Background())
	require.NoError(t, err)
	return tree
}

func settle(t *testing.T, e *runtime.Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, e.WaitIdle(ctx))
}

func tabsPage() *domain.Page {
	tabCondition := func(tab string) *domain.Visibility {
		return &domain.Visibility{Conditions: []domain.VisibilityCondition{{
			ContextPath: "states['tabs-container'].activeTab",
			Operator:    domain.OpEquals,
			Value:       tab,
		}}}
	}
	return &domain.Page{
		ID: "shop",
		Nodes: []domain.Node{
			{
				ID:    "tabs-container",
				Kind:  domain.KindSection,
				State: map[string]any{"activeTab": "tab1"},
				Children: []domain.Node{
					{
						ID:     "tab-button-2",
						Kind:   domain.KindAtom,
						Type:   "button",
						Params: map[string]any{"label": "Tab 2", "active": "{{ parentState.activeTab === 'tab2' }}"},
						EventHandlers: map[string][]domain.Action{
							domain.EventClick: {{
								Type:   domain.ActionUpdateNodeState,
								Target: "tabs-container",
								Params: map[string]any{"activeTab": "tab2"},
							}},
						},
					},
					{ID: "tab1-content", Kind: domain.KindComponent, Visibility: tabCondition("tab1"), Params: map[string]any{"text": "first"}},
					{ID: "tab2-content", Kind: domain.KindComponent, Visibility: tabCondition("tab2"), Params: map[string]any{"text": "second"}},
				},
			},
			{
				ID:   "products",
				Kind: domain.KindComponent,
				DataRequirements: []domain.DataRequirement{{
					Key:             "items",
					Source:          domain.SourceDescriptor{Type: domain.SourceMockData, Query: "allProducts"},
					Blocking:        true,
					CacheDurationMs: 300000,
					DefaultValue:    []any{},
				}},
				Params: map[string]any{"count": "{{ nodeData.items.length }}"},
			},
		},
	}
}

func TestEngine_TabSwitchFlipsVisibilityWithoutRefetch(t *testing.T) {
	src := newCountingSource(map[string]any{"allProducts": []any{"a", "b", "c"}})
	e := newEngine(t, tabsPage(), src, runtime.Config{})
	log := &patchLog{}
	e.Subscribe(log.record)

	first := render(t, e)
	require.NotNil(t, first.Find("products").Placeholder, "blocking requirement shows the placeholder first")
	assert.Nil(t, first.Find("products").Params)
	assert.NotNil(t, first.Find("tab1-content"), "siblings are not blocked")

	settle(t, e)
	tree := render(t, e)
	products := tree.Find("products")
	require.NotNil(t, products)
	assert.Nil(t, products.Placeholder)
	assert.Equal(t, map[string]any{"count": "3"}, products.Params)
	assert.NotNil(t, tree.Find("tab1-content"))
	assert.Nil(t, tree.Find("tab2-content"))
	assert.Equal(t, "false", tree.Find("tab-button-2").Params.(map[string]any)["active"])

	log.reset()
	require.NoError(t, e.UpdateState("tabs-container", map[string]any{"activeTab": "tab2"}))

	patches := log.all()
	require.Len(t, patches, 1)
	assert.Equal(t, domain.ReasonState, patches[0].Reason)
	assert.ElementsMatch(t, []string{"tab-button-2", "tab1-content", "tab2-content"}, patches[0].NodeIDs)

	tree = render(t, e)
	assert.Nil(t, tree.Find("tab1-content"))
	assert.NotNil(t, tree.Find("tab2-content"))
	assert.Equal(t, "true", tree.Find("tab-button-2").Params.(map[string]any)["active"])
	assert.Nil(t, tree.Find("products").Placeholder, "resolved blocking data never reverts")

	settle(t, e)
	assert.Equal(t, 1, src.Total(), "state changes never re-issue data requirements")
}

func TestEngine_DispatchUpdatesTargetNode(t *testing.T) {
	e := newEngine(t, tabsPage(), newCountingSource(map[string]any{"allProducts": []any{}}), runtime.Config{})
	render(t, e)

	require.NoError(t, e.Dispatch(context.Background(), "tab-button-2", domain.EventClick, nil))
	assert.Equal(t, "tab2", e.GetState("tabs-container")["activeTab"])

	tree := render(t, e)
	assert.NotNil(t, tree.Find("tab2-content"))
}

func TestEngine_RepeaterOverLocalState(t *testing.T) {
	page := &domain.Page{
		ID: "catalog",
		Nodes: []domain.Node{{
			ID:    "catalog",
			Kind:  domain.KindSection,
			State: map[string]any{"localProducts": []any{map[string]any{"name": "A"}, map[string]any{"name": "B"}}},
			Repeater: &domain.Repeater{
				Source: "state.localProducts",
				Template: &domain.Node{
					ID:     "product-card",
					Kind:   domain.KindComponent,
					Params: map[string]any{"title": "{{ item.name }}"},
					Children: []domain.Node{
						{ID: "product-price", Kind: domain.KindAtom, Params: map[string]any{"label": "Price of {{ item.name }}"}},
					},
				},
			},
			Children: []domain.Node{{ID: "ignored-static-child", Kind: domain.KindAtom}},
		}},
	}
	e := newEngine(t, page, nil, runtime.Config{})

	tree := render(t, e)
	catalog := tree.Find("catalog")
	require.NotNil(t, catalog)
	require.Len(t, catalog.Children, 2)
	assert.Equal(t, "product-card-0", catalog.Children[0].ID)
	assert.Equal(t, "product-card-1", catalog.Children[1].ID)
	assert.Equal(t, "product-card", catalog.Children[0].TemplateID)
	assert.Equal(t, float64(0), catalog.Children[0].Order)
	assert.Equal(t, float64(1), catalog.Children[1].Order)
	assert.Equal(t, map[string]any{"title": "A"}, catalog.Children[0].Params)
	assert.Equal(t, map[string]any{"title": "B"}, catalog.Children[1].Params)
	assert.Equal(t, map[string]any{"label": "Price of B"}, tree.Find("product-price-1").Params)
	assert.Nil(t, tree.Find("ignored-static-child"))

	require.NoError(t, e.UpdateState("catalog", map[string]any{"localProducts": []any{
		map[string]any{"name": "C"}, map[string]any{"name": "A"}, map[string]any{"name": "B"},
	}}))
	tree = render(t, e)
	require.Len(t, tree.Find("catalog").Children, 3)
	assert.Equal(t, map[string]any{"title": "C"}, tree.Find("product-card-0").Params)
	assert.Equal(t, map[string]any{"label": "Price of C"}, tree.Find("product-price-0").Params)

	require.NoError(t, e.UpdateState("catalog", map[string]any{"localProducts": "not a list"}))
	tree = render(t, e)
	assert.Empty(t, tree.Find("catalog").Children)
	assert.NotContains(t, e.Mounted(), "product-card-0")

	// the schema itself is never touched
	assert.Equal(t, "product-card", page.Nodes[0].Repeater.Template.ID)
}

func TestEngine_VisibilityFromAmbientUser(t *testing.T) {
	page := &domain.Page{
		ID: "dashboard",
		Nodes: []domain.Node{{
			ID:   "admin-panel",
			Kind: domain.KindSection,
			Visibility: &domain.Visibility{Conditions: []domain.VisibilityCondition{{
				ContextPath: "user.isAdmin", Operator: domain.OpEquals, Value: true,
			}}},
		}, {
			ID:     "greeting",
			Kind:   domain.KindAtom,
			Params: map[string]any{"text": "Hi {{ user.name }}"},
		}},
	}

	for name, user := range map[string]map[string]any{
		"false":     {"isAdmin": false},
		"undefined": {},
		"truthy":    {"isAdmin": "yes"},
	} {
		t.Run(name, func(t *testing.T) {
			e := newEngine(t, page, nil, runtime.Config{Ambient: domain.Ambient{User: user}})
			assert.Nil(t, render(t, e).Find("admin-panel"))
		})
	}

	e := newEngine(t, page, nil, runtime.Config{})
	assert.Nil(t, render(t, e).Find("admin-panel"))

	log := &patchLog{}
	e.Subscribe(log.record)
	e.SetAmbient(domain.Ambient{User: map[string]any{"isAdmin": true, "name": "Ana"}})

	patches := log.all()
	require.Len(t, patches, 1)
	assert.Equal(t, domain.ReasonAmbient, patches[0].Reason)
	assert.Equal(t, []string{"admin-panel", "greeting"}, patches[0].NodeIDs)

	tree := render(t, e)
	assert.NotNil(t, tree.Find("admin-panel"))
	assert.Equal(t, map[string]any{"text": "Hi Ana"}, tree.Find("greeting").Params)

	log.reset()
	e.SetAmbient(domain.Ambient{User: map[string]any{"isAdmin": true, "name": "Ana"}, Viewport: map[string]any{"width": 800}})
	assert.Empty(t, log.all(), "nothing reads the viewport")
}

func TestEngine_NonBlockingDefaultThenFetched(t *testing.T) {
	page := &domain.Page{
		ID: "home",
		Nodes: []domain.Node{{
			ID:   "recommendations",
			Kind: domain.KindComponent,
			DataRequirements: []domain.DataRequirement{{
				Key:          "products",
				Source:       domain.SourceDescriptor{Type: domain.SourceMockData, Query: "recommended"},
				DefaultValue: []any{},
			}},
			Params: map[string]any{"count": "{{ nodeData.products.length }}", "list": "{{ nodeData.products }}"},
		}},
	}
	src := newCountingSource(map[string]any{"recommended": []any{"x", "y"}})
	e := newEngine(t, page, src, runtime.Config{})
	log := &patchLog{}
	e.Subscribe(log.record)

	first := render(t, e).Find("recommendations")
	require.NotNil(t, first)
	assert.Nil(t, first.Placeholder)
	assert.Equal(t, []any{}, first.NodeData["products"])
	assert.Equal(t, []string{"products"}, first.Pending)
	assert.Equal(t, "0", first.Params.(map[string]any)["count"])

	settle(t, e)
	patches := log.all()
	require.NotEmpty(t, patches)
	assert.Equal(t, domain.ReasonData, patches[0].Reason)
	assert.Equal(t, []string{"recommendations"}, patches[0].NodeIDs)

	second := render(t, e).Find("recommendations")
	assert.Equal(t, []any{"x", "y"}, second.NodeData["products"])
	assert.Empty(t, second.Pending)
	assert.Equal(t, "2", second.Params.(map[string]any)["count"])
	assert.Equal(t, []any{"x", "y"}, second.Params.(map[string]any)["list"])
}

func TestEngine_SettleAfterUnmountIsDiscarded(t *testing.T) {
	page := &domain.Page{
		ID: "detail",
		Nodes: []domain.Node{{
			ID:    "page-root",
			Kind:  domain.KindSection,
			State: map[string]any{"show": true},
			Children: []domain.Node{{
				ID:    "details",
				Kind:  domain.KindComponent,
				State: map[string]any{"expanded": false},
				Visibility: &domain.Visibility{Conditions: []domain.VisibilityCondition{{
					ContextPath: "parentState.show", Operator: domain.OpTruthy,
				}}},
				DataRequirements: []domain.DataRequirement{{
					Key:    "stats",
					Source: domain.SourceDescriptor{Type: domain.SourceMockData, Query: "stats"},
				}},
			}},
		}},
	}
	src := newCountingSource(map[string]any{"stats": map[string]any{"views": 10}})
	src.gate = make(chan struct{})
	e := newEngine(t, page, src, runtime.Config{})
	log := &patchLog{}
	e.Subscribe(log.record)

	tree := render(t, e)
	require.NotNil(t, tree.Find("details"))
	assert.Equal(t, map[string]any{"expanded": false}, e.GetState("details"))

	require.NoError(t, e.UpdateState("page-root", map[string]any{"show": false}))
	tree = render(t, e)
	assert.Nil(t, tree.Find("details"))
	assert.Equal(t, map[string]any{"expanded": false}, e.GetState("details"), "hidden nodes keep their local state")

	log.reset()
	close(src.gate)
	settle(t, e)

	for _, p := range log.all() {
		assert.NotEqual(t, domain.ReasonData, p.Reason)
	}

	err := e.Dispatch(context.Background(), "details", domain.EventClick, nil)
	assert.ErrorIs(t, err, domain.ErrNodeNotMounted)
}

func TestEngine_DispatchResolvesParamsBeforeWrites(t *testing.T) {
	page := &domain.Page{
		ID: "search",
		Nodes: []domain.Node{{
			ID:    "search-box",
			Kind:  domain.KindAtom,
			Type:  "input",
			State: map[string]any{"query": "old"},
			EventHandlers: map[string][]domain.Action{
				domain.EventChange: {
					{Type: domain.ActionUpdateState, Params: map[string]any{"query": "{{ event.value }}", "previous": "{{ state.query }}"}},
					{Type: domain.ActionSubmitData, Params: map[string]any{"q": "{{ state.query }}", "next": "{{ event.value }}"}},
				},
			},
		}},
	}
	d := &recordingDispatcher{}
	e := newEngine(t, page, nil, runtime.Config{Dispatcher: d})
	tree := render(t, e)
	assert.Equal(t, []string{domain.EventChange}, tree.Find("search-box").Events)

	require.NoError(t, e.Dispatch(context.Background(), "search-box", domain.EventChange, "shoes"))

	assert.Equal(t, map[string]any{"query": "shoes", "previous": "old"}, e.GetState("search-box"))
	require.Len(t, d.requests, 1)
	assert.Equal(t, domain.ActionSubmitData, d.requests[0].Type)
	assert.Equal(t, "search-box", d.requests[0].NodeID)
	assert.Equal(t, map[string]any{"q": "old", "next": "shoes"}, d.requests[0].Params)
}

func TestEngine_RepeatedDispatchKeepsNumbers(t *testing.T) {
	page := &domain.Page{
		ID: "counter",
		Nodes: []domain.Node{{
			ID:     "counter",
			Kind:   domain.KindComponent,
			State:  map[string]any{"count": float64(0)},
			Params: map[string]any{"label": "Clicked {{ state.count }} times"},
			EventHandlers: map[string][]domain.Action{
				domain.EventClick: {{Type: domain.ActionUpdateState, Params: map[string]any{
					"count": "{{ state.count + 1 }}",
					"last":  "{{ event.value }}",
				}}},
			},
		}},
	}
	e := newEngine(t, page, nil, runtime.Config{})
	render(t, e)

	for i := 0; i < 3; i++ {
		require.NoError(t, e.Dispatch(context.Background(), "counter", domain.EventClick, i))
	}
	assert.Equal(t, map[string]any{"count": float64(3), "last": 2}, e.GetState("counter"))
	assert.Equal(t, map[string]any{"label": "Clicked 3 times"}, render(t, e).Find("counter").Params)
}

func TestEngine_SelfHidingNodeKeepsState(t *testing.T) {
	page := &domain.Page{
		ID: "home",
		Nodes: []domain.Node{{
			ID:    "banner",
			Kind:  domain.KindComponent,
			State: map[string]any{"open": true},
			Visibility: &domain.Visibility{Conditions: []domain.VisibilityCondition{{
				ContextPath: "states['banner'].open", Operator: domain.OpTruthy,
			}}},
			EventHandlers: map[string][]domain.Action{
				domain.EventClick: {{Type: domain.ActionUpdateState, Params: map[string]any{"open": false}}},
			},
		}, {
			ID:     "reopen",
			Kind:   domain.KindAtom,
			Params: map[string]any{"open": "{{ states.banner.open }}"},
		}},
	}
	e := newEngine(t, page, nil, runtime.Config{})
	require.NotNil(t, render(t, e).Find("banner"))

	require.NoError(t, e.Dispatch(context.Background(), "banner", domain.EventClick, nil))
	for i := 0; i < 2; i++ {
		tree := render(t, e)
		assert.Nil(t, tree.Find("banner"), "dismissed banner stays hidden")
		assert.Equal(t, map[string]any{"open": "false"}, tree.Find("reopen").Params)
	}
	assert.Equal(t, map[string]any{"open": false}, e.GetState("banner"))
	assert.NotContains(t, e.Mounted(), "banner")

	require.NoError(t, e.UpdateState("banner", map[string]any{"open": true}))
	assert.NotNil(t, render(t, e).Find("banner"))
}

func TestEngine_ReturnedTreesAreIndependent(t *testing.T) {
	page := &domain.Page{
		ID: "p",
		Nodes: []domain.Node{{
			ID:     "title",
			Kind:   domain.KindAtom,
			Params: map[string]any{"text": "Hello", "tags": []any{"a"}},
			Style:  map[string]any{"color": "red"},
		}},
	}
	e := newEngine(t, page, nil, runtime.Config{})

	first := render(t, e).Find("title")
	first.Params.(map[string]any)["text"] = "changed"
	first.Params.(map[string]any)["tags"].([]any)[0] = "z"
	first.Style.(map[string]any)["color"] = "blue"

	second := render(t, e).Find("title")
	assert.Equal(t, map[string]any{"text": "Hello", "tags": []any{"a"}}, second.Params)
	assert.Equal(t, map[string]any{"color": "red"}, second.Style)
}

func TestEngine_DispatchWithoutDispatcher(t *testing.T) {
	page := &domain.Page{
		ID: "p",
		Nodes: []domain.Node{{
			ID:   "open",
			Kind: domain.KindAtom,
			EventHandlers: map[string][]domain.Action{
				domain.EventClick: {{Type: domain.ActionOpenModal, Params: map[string]any{"modalId": "m"}}},
			},
		}},
	}
	e := newEngine(t, page, nil, runtime.Config{})
	render(t, e)

	err := e.Dispatch(context.Background(), "open", domain.EventClick, nil)
	assert.ErrorIs(t, err, runtime.ErrNoDispatcher)
}

func TestEngine_PageDataSources(t *testing.T) {
	page := &domain.Page{
		ID:   "product",
		Data: map[string]any{"currency": "EUR"},
		DataSources: []domain.DataRequirement{{
			Key:    "product",
			Source: domain.SourceDescriptor{Type: domain.SourceMockData, Query: "product/{{ page.productId }}"},
		}},
		Nodes: []domain.Node{{
			ID:     "title",
			Kind:   domain.KindAtom,
			Params: map[string]any{"text": "{{ data.product.name }} ({{ data.currency }})"},
		}, {
			ID:     "static",
			Kind:   domain.KindAtom,
			Params: map[string]any{"text": "no data here"},
		}},
	}
	src := newCountingSource(map[string]any{"product/42": map[string]any{"name": "Mug"}})
	e := newEngine(t, page, src, runtime.Config{Ambient: domain.Ambient{Page: map[string]any{"productId": "42"}}})
	log := &patchLog{}
	e.Subscribe(log.record)

	assert.Equal(t, map[string]any{"text": " (EUR)"}, render(t, e).Find("title").Params)
	settle(t, e)

	patches := log.all()
	require.Len(t, patches, 1)
	assert.Equal(t, []string{"title"}, patches[0].NodeIDs)

	assert.Equal(t, map[string]any{"text": "Mug (EUR)"}, render(t, e).Find("title").Params)
	assert.Equal(t, 1, src.Total())
}

func TestEngine_EvaluateInNodeContext(t *testing.T) {
	e := newEngine(t, tabsPage(), newCountingSource(map[string]any{"allProducts": []any{}}), runtime.Config{})
	render(t, e)

	v, err := e.Evaluate("tab-button-2", "parentState.activeTab")
	require.NoError(t, err)
	assert.Equal(t, "tab1", v)

	v, err = e.Evaluate("", `states["tabs-container"].activeTab + "!"`)
	require.NoError(t, err)
	assert.Equal(t, "tab1!", v)

	_, err = e.Evaluate("missing", "1")
	assert.ErrorIs(t, err, domain.ErrNodeNotMounted)

	assert.ErrorIs(t, e.UpdateState("nope", map[string]any{"a": 1}), domain.ErrNodeNotFound)
}

func TestEngine_SiblingOrder(t *testing.T) {
	page := &domain.Page{
		ID: "ordered",
		Nodes: []domain.Node{
			{ID: "c", Kind: domain.KindAtom, Order: order(2)},
			{ID: "a", Kind: domain.KindAtom, Order: order(0)},
			{ID: "b1", Kind: domain.KindAtom, Order: order(1)},
			{ID: "b2", Kind: domain.KindAtom, Order: order(1)},
		},
	}
	e := newEngine(t, page, nil, runtime.Config{})
	tree := render(t, e)

	var ids []string
	for _, n := range tree.Nodes {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"a", "b1", "b2", "c"}, ids)
}

func TestEngine_DegradedExpressionsAreNodeLocal(t *testing.T) {
	var evalErrors []string
	hooks := domain.LifecycleHooks{OnEvalError: func(_ context.Context, ev *domain.EvalEvent) {
		evalErrors = append(evalErrors, ev.NodeID)
	}}
	page := &domain.Page{
		ID: "broken",
		Nodes: []domain.Node{
			{ID: "bad", Kind: domain.KindAtom, Params: map[string]any{"a": "{{ 1 + }}", "b": "{{ nope() }}"}},
			{ID: "good", Kind: domain.KindAtom, Params: map[string]any{"a": "{{ 2 * 3 }}"}},
		},
	}
	e := newEngine(t, page, nil, runtime.Config{Hooks: hooks})
	tree := render(t, e)

	assert.Equal(t, map[string]any{"a": "", "b": ""}, tree.Find("bad").Params)
	assert.Equal(t, map[string]any{"a": "6"}, tree.Find("good").Params)
	assert.Equal(t, []string{"bad", "bad"}, evalErrors)
}
