package chatbot

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/shubhamagrawalwork/langgraph-tavily-chatbot/models"
	"github.com/shubhamagrawalwork/langgraph-tavily-chatbot/stores"
)

// Model is one inference backend. Implementations stream partial responses
// over the returned channel; both channels are closed when the request is
// finished or failed.
type Model interface {
	Model_Request(request models.Model_Request, tools []models.FunctionDeclaration, conversationHistory []stores.Message) (models.Model_Response, error)
	Stream_Model_Request(request models.Model_Request, tools []models.FunctionDeclaration, conversationHistory []stores.Message) (<-chan models.Model_Response, <-chan error)
}

// Agent couples a model with the tool set it may call.
type Agent struct {
	Model Model
	Tools []models.FunctionDeclaration
}

func New_Agent(model Model, tools []models.FunctionDeclaration) Agent {
	return Agent{
		Model: model,
		Tools: tools,
	}
}

func (agent *Agent) Run(request models.Model_Request, conversationHistory []stores.Message) (models.Model_Response, error) {
	return agent.Model.Model_Request(request, agent.Tools, conversationHistory)
}

func (agent *Agent) Run_Stream(request models.Model_Request, conversationHistory []stores.Message) (<-chan models.Model_Response, <-chan error) {
	return agent.Model.Stream_Model_Request(request, agent.Tools, conversationHistory)
}

// HasTool reports whether the agent recognizes a tool name. Calls for
// unrecognized names are ignored by the turn engine.
func (agent *Agent) HasTool(name string) bool {
	for _, tool := range agent.Tools {
		if tool.Name == name {
			return true
		}
	}
	return false
}

// ExecuteTool executes a tool dynamically by name and arguments. Tools are
// plain functions with signature func(string) (string, error); the single
// string argument is extracted from the model's argument map. On success the
// tool's raw string output is returned; on any failure the returned string is
// a JSON {"error": ...} document so the model still receives a well-formed
// result, alongside the Go error.
func (agent *Agent) ExecuteTool(functionName string, functionCallArgs map[string]interface{}) (string, error) {
	var toolOutput string
	var toolExecErr error
	toolFound := false

	for _, tool := range agent.Tools {
		if tool.Name != functionName {
			continue
		}
		toolFound = true
		callableFunc := reflect.ValueOf(tool.Callable)

		if callableFunc.Kind() != reflect.Func {
			toolExecErr = fmt.Errorf("internal error: tool '%s' is not callable", functionName)
			break
		}
		funcType := callableFunc.Type()
		// Validate signature: func(string) (string, error)
		if !(funcType.NumIn() == 1 && funcType.In(0).Kind() == reflect.String &&
			funcType.NumOut() == 2 && funcType.Out(0).Kind() == reflect.String &&
			funcType.Out(1).Implements(reflect.TypeOf((*error)(nil)).Elem())) {
			toolExecErr = fmt.Errorf("internal error: tool '%s' has incompatible signature", functionName)
			break
		}

		if len(functionCallArgs) != 1 {
			toolExecErr = fmt.Errorf("tool '%s' expects 1 argument from model, got %d args: %v", functionName, len(functionCallArgs), functionCallArgs)
			break
		}
		var argName string
		var argValue interface{}
		for key, val := range functionCallArgs {
			argName = key
			argValue = val
			break
		}
		stringArg, ok := argValue.(string)
		if !ok {
			toolExecErr = fmt.Errorf("invalid argument type for '%s': expected string for arg '%s', got %T", functionName, argName, argValue)
			break
		}

		results := callableFunc.Call([]reflect.Value{reflect.ValueOf(stringArg)})

		if errResult := results[1].Interface(); errResult != nil {
			if execErr, ok := errResult.(error); ok {
				toolExecErr = execErr
			} else {
				toolExecErr = fmt.Errorf("internal error: tool '%s' returned invalid error type", functionName)
			}
		} else if output, ok := results[0].Interface().(string); ok {
			toolOutput = output
		} else {
			toolExecErr = fmt.Errorf("internal error: tool '%s' returned non-string result", functionName)
		}
		break
	}

	if !toolFound {
		toolExecErr = fmt.Errorf("unknown or unavailable tool: %s", functionName)
	}

	if toolExecErr != nil {
		errorBytes, _ := json.Marshal(map[string]string{"error": toolExecErr.Error()})
		toolOutput = string(errorBytes)
	}

	return toolOutput, toolExecErr
}
