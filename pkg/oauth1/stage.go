// Copyright (c) 2021 Red Hat, Inc.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package oauth1

// FlowStage is the stage of a single OAuth 1.0a authorization attempt. It is only used for logging and metrics.
type FlowStage string

const (
	StageStart                FlowStage = "start"
	StageRequestTokenObtained FlowStage = "request_token_obtained"
	StageUserAuthorizing      FlowStage = "user_authorizing"
	StageExchanged            FlowStage = "exchanged"
	StageActive               FlowStage = "active"
	StageDenied               FlowStage = "denied"
	StageFailed               FlowStage = "failed"
)
