// Copyright 2021 Couchbase
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transactions

// StagedOperation wraps all of the information about an operation which has
// been staged as part of the transaction and which is applied to the record
// store when the transaction is committed.
type StagedOperation struct {
	OpID      OpID
	Operation Operation

	// Applied holds the success outcome of an operation which already reached
	// the record store in an earlier commit round. Applied operations are
	// never executed again.
	Applied *Outcome

	// Failed indicates the operation failed in the last commit round, which
	// allows the client to replace it.
	Failed bool
}

type stagedOperations []*StagedOperation

func (s stagedOperations) find(opID OpID) (int, *StagedOperation) {
	for i, staged := range s {
		if staged.OpID == opID {
			return i, staged
		}
	}

	return -1, nil
}

func (s stagedOperations) clone() stagedOperations {
	out := make(stagedOperations, len(s))
	for i, staged := range s {
		cp := *staged
		out[i] = &cp
	}
	return out
}
