package task

// DefaultModel is the hosted model used when no override is configured.
const DefaultModel = "deepseek-chat"

// Params are the model sampling parameters for one task type.
type Params struct {
	Model       string
	Temperature float64
	MaxTokens   int
	TopP        float64
}

var baseParams = Params{
	Model:       DefaultModel,
	Temperature: 0.3,
	MaxTokens:   500,
	TopP:        0.9,
}

// temperatures holds the per-type override of baseParams.Temperature.
// Factual lookups run colder, open-ended customer conversations warmer.
var temperatures = map[Type]float64{
	GeneralQuestion: 0.3,
	ProductInfo:     0.2,
	OrderStatus:     0.1,
	SalesReport:     0.2,
	Marketing:       0.3,
	Inventory:       0.2,
	CustomerService: 0.4,
	Technical:       0.2,
	StoreAdvice:     0.3,
	Error:           0.1,
}

// ParamsFor returns the parameters for t. An empty model keeps DefaultModel.
func ParamsFor(t Type, model string) Params {
	p := baseParams
	if temp, ok := temperatures[t]; ok {
		p.Temperature = temp
	}
	if model != "" {
		p.Model = model
	}
	return p
}
