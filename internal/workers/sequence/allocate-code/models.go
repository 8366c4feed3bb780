package allocatecode

type Input struct {
	Kind  string `json:"kind"`
	Owner string `json:"owner,omitempty"`
}

type Output struct {
	Code  string `json:"code"`
	Value int64  `json:"value"`
	Scope string `json:"scope"`
}
