package kb

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/mto-simulator/model"
)

// EngineeringID is the department every engineered order must visit first.
const EngineeringID = 7

var (
	// ErrDepartmentExists is returned when adding a duplicate department ID.
	ErrDepartmentExists = errors.New("department already exists")
	// ErrDepartmentNotFound is returned when a department ID is unknown.
	ErrDepartmentNotFound = errors.New("department not found")
	// ErrCustomerExists is returned when adding a duplicate customer ID.
	ErrCustomerExists = errors.New("customer already exists")
)

// DepartmentTemplate is the static definition a session department is
// initialized from.
type DepartmentTemplate struct {
	ID           int
	Name         string
	Operations   []model.Operation
	MaxQueueSize int
	DefaultRule  model.DispatchRule
}

// Catalog is an in-memory, thread-safe store of department templates and
// the customer roster.
type Catalog struct {
	mu sync.RWMutex

	departments map[int]DepartmentTemplate
	customers   map[string]model.Customer
	// order keeps customers in insertion order so random choices are
	// reproducible.
	order []string
}

// NewCatalog constructs an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		departments: make(map[int]DepartmentTemplate),
		customers:   make(map[string]model.Customer),
	}
}

// AddDepartment adds a department template.
func (c *Catalog) AddDepartment(t DepartmentTemplate) error {
	if t.ID <= 0 {
		return fmt.Errorf("department id must be positive, got %d", t.ID)
	}
	if len(t.Operations) == 0 {
		return fmt.Errorf("department %d has no operations", t.ID)
	}
	if t.MaxQueueSize <= 0 {
		return fmt.Errorf("department %d: max queue size must be positive", t.ID)
	}
	if t.DefaultRule == "" {
		t.DefaultRule = model.RuleFIFO
	}
	if !t.DefaultRule.Valid() {
		return fmt.Errorf("department %d: unknown dispatch rule %q", t.ID, t.DefaultRule)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.departments[t.ID]; exists {
		return fmt.Errorf("%w: %d", ErrDepartmentExists, t.ID)
	}
	t.Operations = append([]model.Operation(nil), t.Operations...)
	c.departments[t.ID] = t
	return nil
}

// AddCustomer appends a customer to the roster.
func (c *Catalog) AddCustomer(cust model.Customer) error {
	if cust.ID == "" {
		return fmt.Errorf("customer id is required")
	}
	if cust.Tier == "" {
		cust.Tier = model.TierStandard
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.customers[cust.ID]; exists {
		return fmt.Errorf("%w: %s", ErrCustomerExists, cust.ID)
	}
	c.customers[cust.ID] = cust
	c.order = append(c.order, cust.ID)
	return nil
}

// Department returns the template with the given ID.
func (c *Catalog) Department(id int) (DepartmentTemplate, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.departments[id]
	if !ok {
		return DepartmentTemplate{}, fmt.Errorf("%w: %d", ErrDepartmentNotFound, id)
	}
	return t, nil
}

// Departments returns all templates sorted by ID.
func (c *Catalog) Departments() []DepartmentTemplate {
	c.mu.RLock()
	defer c.mu.RUnlock()

	res := make([]DepartmentTemplate, 0, len(c.departments))
	for _, t := range c.departments {
		res = append(res, t)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// Customers returns the roster in insertion order.
func (c *Catalog) Customers() []model.Customer {
	c.mu.RLock()
	defer c.mu.RUnlock()

	res := make([]model.Customer, 0, len(c.order))
	for _, id := range c.order {
		res = append(res, c.customers[id])
	}
	return res
}

// DefaultCatalog returns the standard shop floor and roster.
func DefaultCatalog() *Catalog {
	c := NewCatalog()
	ops := func(pairs ...any) []model.Operation {
		var res []model.Operation
		for i := 0; i+1 < len(pairs); i += 2 {
			res = append(res, model.Operation{
				Name:         pairs[i].(string),
				StandardTime: pairs[i+1].(model.Millis),
			})
		}
		return res
	}
	departments := []DepartmentTemplate{
		{ID: 1, Name: "Machining", Operations: ops("Rough cut", 40*model.Second, "Finish", 30*model.Second), MaxQueueSize: 6},
		{ID: 2, Name: "Assembly", Operations: ops("Assemble", 60*model.Second), MaxQueueSize: 8},
		{ID: 3, Name: "Welding", Operations: ops("Tack", 20*model.Second, "Weld", 45*model.Second), MaxQueueSize: 5},
		{ID: 4, Name: "Painting", Operations: ops("Prime", 25*model.Second, "Coat", 35*model.Second), MaxQueueSize: 6},
		{ID: 5, Name: "Cutting", Operations: ops("Cut", 45*model.Second), MaxQueueSize: 6},
		{ID: 6, Name: "Quality Control", Operations: ops("Inspect", 30*model.Second), MaxQueueSize: 10},
		{ID: EngineeringID, Name: "Engineering", Operations: ops("Design review", 90*model.Second), MaxQueueSize: 4},
	}
	for _, d := range departments {
		if err := c.AddDepartment(d); err != nil {
			panic(err)
		}
	}
	customers := []model.Customer{
		{ID: "C-001", Name: "Northwind Fabrication", Tier: model.TierKey},
		{ID: "C-002", Name: "Harbor Marine", Tier: model.TierPreferred},
		{ID: "C-003", Name: "Ridgeway Tools", Tier: model.TierStandard},
		{ID: "C-004", Name: "Summit Agricultural", Tier: model.TierStandard},
		{ID: "C-005", Name: "Atlas Rail", Tier: model.TierPreferred},
		{ID: "C-006", Name: "Bluebird Robotics", Tier: model.TierKey},
		{ID: "C-007", Name: "Keystone Energy", Tier: model.TierStandard},
		{ID: "C-008", Name: "Pioneer Medical", Tier: model.TierPreferred},
	}
	for _, cust := range customers {
		if err := c.AddCustomer(cust); err != nil {
			panic(err)
		}
	}
	return c
}
