/*
 *	Copyright 2023 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

package module

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/graphsurgery/pkg/core/devices"
	"github.com/gomlx/graphsurgery/pkg/core/tensors"
)

// Variable is a tensor owned by a Unit. It's commonly used to store the weights (aka. parameters) of
// a model, or other state (buffers) that is not trained, like running statistics.
//
// Moving a Unit to a different device replaces its variables by new ones: a Variable collected before the
// move keeps pointing to the value it had.
type Variable struct {
	// Value is the current value of the variable.
	Value *tensors.Tensor

	// Trainable is true for parameters, false for buffers.
	Trainable bool
}

// NewVariable creates a variable with the given value.
func NewVariable(value *tensors.Tensor, trainable bool) *Variable {
	value.AssertValid()
	return &Variable{Value: value, Trainable: trainable}
}

// Clone returns a new variable holding a detached copy of the value, with the same Trainable tag.
func (v *Variable) Clone() *Variable {
	return &Variable{Value: v.Value.Clone(), Trainable: v.Trainable}
}

// To returns the variable with its value on the given device. If it is already there, it returns v itself.
// Otherwise, it returns a new variable, with the same Trainable tag, and v is left untouched.
func (v *Variable) To(device devices.Device) *Variable {
	if v.Value.Device() == device {
		return v
	}
	return &Variable{Value: v.Value.To(device), Trainable: v.Trainable}
}

// String implements fmt.Stringer.
func (v *Variable) String() string {
	if v == nil {
		return "Variable(nil)"
	}
	kind := "buffer"
	if v.Trainable {
		kind = "parameter"
	}
	return fmt.Sprintf("%s: %s", kind, v.Value)
}

// assertValidName panics if name cannot be used as a child or variable name.
func assertValidName(what, name string) {
	if name == "" {
		exceptions.Panicf("%s name cannot be empty", what)
	}
	if strings.Contains(name, ".") {
		exceptions.Panicf("%s name %q cannot contain \".\"", what, name)
	}
}
