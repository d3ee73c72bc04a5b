// Copyright 2025 The packwright Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

// Blank-imported so each dissector's init() registers itself in
// protocol.Default() before any capture file is opened.
import (
	_ "github.com/packwright/packwright/internal/protocol/linklayer"
	_ "github.com/packwright/packwright/internal/protocol/netlayer"
	_ "github.com/packwright/packwright/internal/protocol/parp"
	_ "github.com/packwright/packwright/internal/protocol/pdhcp"
	_ "github.com/packwright/packwright/internal/protocol/pdns"
	_ "github.com/packwright/packwright/internal/protocol/phttp"
	_ "github.com/packwright/packwright/internal/protocol/picmp"
	_ "github.com/packwright/packwright/internal/protocol/ptls"
	_ "github.com/packwright/packwright/internal/protocol/translayer"
)
