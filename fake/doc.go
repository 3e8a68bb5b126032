// Package fake
// Author: momentics <momentics@gmail.com>
//
// Test doubles for the completion ring. Ring replays scripted completions
// and records every submission; EchoRing simulates a local echo peer with
// optional refusals and payload corruption.

package fake
