package server

import (
	"reflect"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
)

var jsonHandler = sonic.Config{
	UseNumber:  true,
	EscapeHTML: true,
}.Froze()

func init() {
	sonic.Pretouch(reflect.TypeOf(JSONResponse{}))
}

type JSONResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func fastJSONMarshal(v interface{}) []byte {
	data, _ := jsonHandler.Marshal(v)
	return data
}

func writeJSON(c *gin.Context, code int, message string, data interface{}) {
	c.Data(code, "application/json; charset=utf-8", fastJSONMarshal(JSONResponse{
		Code:    code,
		Message: message,
		Data:    data,
	}))
}
