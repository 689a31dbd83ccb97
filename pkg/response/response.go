package response

// Response represents a standard API response format
type Response struct {
	Status     string      `json:"status"`      // "success" or "error"
	StatusCode int         `json:"status_code"` // HTTP status code
	Data       interface{} `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
	Code       string      `json:"code,omitempty"`      // stable machine readable error code
	Conflicts  *Conflicts  `json:"conflicts,omitempty"` // set on 409 only
}

// Conflicts lists the records a write would adjust before it can be applied
type Conflicts struct {
	Overlapping interface{} `json:"overlapping"`
}

// Success returns a standard success response wrapping the data
func Success(statusCode int, data interface{}) Response {
	return Response{
		Status:     "success",
		StatusCode: statusCode,
		Data:       data,
	}
}

// Error returns a standard error response wrapping the error message
func Error(statusCode int, err string) Response {
	return Response{
		Status:     "error",
		StatusCode: statusCode,
		Error:      err,
	}
}

// CodedError is Error with a stable error code attached
func CodedError(statusCode int, code, err string) Response {
	resp := Error(statusCode, err)
	resp.Code = code
	return resp
}

// Conflict returns a 409 response listing the overlapping records
func Conflict(code, err string, overlapping interface{}) Response {
	resp := CodedError(409, code, err)
	resp.Conflicts = &Conflicts{Overlapping: overlapping}
	return resp
}
