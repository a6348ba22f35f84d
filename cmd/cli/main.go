// Copyright 2026 fanjia1024
//
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

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Println("invoice-agent cli 0.1.0")
		return
	}

	client := newClient()
	sessionID := "cli-" + uuid.NewString()
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Println("invoice-agent 对话客户端 (exit 退出)")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if query == "exit" || query == "quit" {
			return
		}

		resp, err := sendChat(client, sessionID, query)
		if err != nil {
			fmt.Fprintf(os.Stderr, "错误: %v\n", err)
			continue
		}

		// 待确认的邮件草稿:展示并等待 y/n
		for resp.ActionRequired != "" {
			printDraft(resp)
			fmt.Print("发送这封邮件吗? [y/N] ")
			if !scanner.Scan() {
				return
			}
			approve := strings.EqualFold(strings.TrimSpace(scanner.Text()), "y")
			resp, err = sendDecision(client, sessionID, resp.ActionToken, approve)
			if err != nil {
				fmt.Fprintf(os.Stderr, "错误: %v\n", err)
				break
			}
		}
		if err != nil {
			continue
		}
		fmt.Println(resp.Answer)
	}
}

func printDraft(resp *chatResponse) {
	fmt.Println("--- 待确认的邮件草稿 ---")
	for _, key := range []string{"to_emails", "subject", "body", "attachments_json"} {
		if v, ok := resp.DraftDetails[key]; ok {
			fmt.Printf("%s: %v\n", key, v)
		}
	}
	if resp.ExpiresAt != "" {
		fmt.Printf("有效期至: %s\n", resp.ExpiresAt)
	}
}
