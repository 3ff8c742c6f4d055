/*
 *
 * Copyright 2025 Microsoft Corporation.
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
 *
 */

package events

// SMB2 command codes carried in the Command field. The numbering matches
// the protocol and the collaborating consumer's table.
const (
	CmdNegotiate                  uint16 = 0
	CmdSessionSetup               uint16 = 1
	CmdLogoff                     uint16 = 2
	CmdTreeConnect                uint16 = 3
	CmdTreeDisconnect             uint16 = 4
	CmdCreate                     uint16 = 5
	CmdClose                      uint16 = 6
	CmdFlush                      uint16 = 7
	CmdRead                       uint16 = 8
	CmdWrite                      uint16 = 9
	CmdLock                       uint16 = 10
	CmdIoctl                      uint16 = 11
	CmdCancel                     uint16 = 12
	CmdEcho                       uint16 = 13
	CmdQueryDirectory             uint16 = 14
	CmdChangeNotify               uint16 = 15
	CmdQueryInfo                  uint16 = 16
	CmdSetInfo                    uint16 = 17
	CmdOplockBreak                uint16 = 18
	CmdServerToClientNotification uint16 = 19

	// NumCommands is one past the highest command code.
	NumCommands = 20
)

// Tool identifiers carried in the Tool field. The tool decides how the
// metric slot is read: latency events carry nanoseconds, error events
// carry a return code.
const (
	ToolLatency uint8 = 0
	ToolError   uint8 = 1
)

// Commands maps command names as they appear in configuration files to
// their wire codes.
var Commands = map[string]uint16{
	"SMB2_NEGOTIATE":                     CmdNegotiate,
	"SMB2_SESSION_SETUP":                 CmdSessionSetup,
	"SMB2_LOGOFF":                        CmdLogoff,
	"SMB2_TREE_CONNECT":                  CmdTreeConnect,
	"SMB2_TREE_DISCONNECT":               CmdTreeDisconnect,
	"SMB2_CREATE":                        CmdCreate,
	"SMB2_CLOSE":                         CmdClose,
	"SMB2_FLUSH":                         CmdFlush,
	"SMB2_READ":                          CmdRead,
	"SMB2_WRITE":                         CmdWrite,
	"SMB2_LOCK":                          CmdLock,
	"SMB2_IOCTL":                         CmdIoctl,
	"SMB2_CANCEL":                        CmdCancel,
	"SMB2_ECHO":                          CmdEcho,
	"SMB2_QUERY_DIRECTORY":               CmdQueryDirectory,
	"SMB2_CHANGE_NOTIFY":                 CmdChangeNotify,
	"SMB2_QUERY_INFO":                    CmdQueryInfo,
	"SMB2_SET_INFO":                      CmdSetInfo,
	"SMB2_OPLOCK_BREAK":                  CmdOplockBreak,
	"SMB2_SERVER_TO_CLIENT_NOTIFICATION": CmdServerToClientNotification,
}

var commandNames = func() map[uint16]string {
	m := make(map[uint16]string, len(Commands))
	for name, code := range Commands {
		m[code] = name
	}
	return m
}()

// CommandName returns the protocol name for a command code, or "UNKNOWN"
// for codes outside the table.
func CommandName(code uint16) string {
	if name, ok := commandNames[code]; ok {
		return name
	}
	return "UNKNOWN"
}
