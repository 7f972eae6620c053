// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tools implements the closed set of local tools the model can
// invoke (Read, Write, Edit, Bash, Grep, Glob), the permission policy that
// gates them, and the executor that runs them.
//
// Permission checking is a pure function of (tool, arguments, trust level);
// the trust level itself lives in the session and is changed only by the
// user. Destructive Bash patterns always require confirmation, overriding
// full trust. Execution failures are returned as tool results visible to
// the model, never as crashes.
package tools
