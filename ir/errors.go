/*
 * Copyright 2022 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package ir

import (
    `fmt`
)

// GraphError occures when a graph violates a structural invariant. It is
// always fatal to the pipeline run of that graph.
type GraphError struct {
    Graph  string
    Block  int
    Reason string
}

func (self *GraphError) Error() string {
    if self.Block < 0 {
        return fmt.Sprintf("GraphError(%s): %s", self.Graph, self.Reason)
    } else {
        return fmt.Sprintf("GraphError(%s, bb_%d): %s", self.Graph, self.Block, self.Reason)
    }
}

func EGraph(g *Graph, reason string, args ...interface{}) *GraphError {
    return &GraphError {
        Graph  : g.Name,
        Block  : -1,
        Reason : fmt.Sprintf(reason, args...),
    }
}

func EBlock(g *Graph, bb int, reason string, args ...interface{}) *GraphError {
    return &GraphError {
        Graph  : g.Name,
        Block  : bb,
        Reason : fmt.Sprintf(reason, args...),
    }
}
