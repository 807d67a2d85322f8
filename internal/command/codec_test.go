package command

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want string
	}{
		{
			name: "no payload",
			cmd:  GameStart{},
			want: `{"kind":"game-start"}`,
		},
		{
			name: "flat payload",
			cmd:  MoveEntity{ID: 7, X: 100, Y: 520},
			want: `{"kind":"move-entity","id":7,"x":100,"y":520}`,
		},
		{
			name: "nested payload",
			cmd:  Roster{Entries: []RosterEntry{{ID: 1, Name: "Alice"}, {ID: 2, Name: "Bob"}}},
			want: `{"kind":"roster","entries":[{"id":1,"name":"Alice"},{"id":2,"name":"Bob"}]}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.cmd)
			if err != nil {
				t.Fatalf("Encode() returned an unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, string(got)); diff != "" {
				t.Errorf("Encode() did not match expected; diff:\n%s", diff)
			}
		})
	}
}

func TestEncodeLine(t *testing.T) {
	got, err := EncodeLine(Shoot{ID: 3})
	if err != nil {
		t.Fatalf("EncodeLine() returned an unexpected error: %v", err)
	}
	if string(got) != "{\"kind\":\"shoot\",\"id\":3}\n" {
		t.Errorf("EncodeLine() got = %q", got)
	}
}

func TestCatalog_Decode(t *testing.T) {
	tests := []struct {
		name    string
		catalog *Catalog
		data    string
		want    Command
		wantErr error
	}{
		{
			name:    "configure player",
			catalog: ServerBound,
			data:    `{"kind":"configure-player","id":4,"name":"Alice","teamSize":2,"udpPort":5000}`,
			want:    ConfigurePlayer{ID: 4, Name: "Alice", TeamSize: 2, UDPPort: 5000},
		},
		{
			name:    "zero padded datagram",
			catalog: ServerBound,
			data:    "{\"kind\":\"move-left\",\"id\":1}\x00\x00\x00\x00",
			want:    MoveLeft{ID: 1},
		},
		{
			name:    "tcp line",
			catalog: ClientBound,
			data:    "{\"kind\":\"wipe-entity\",\"id\":12}\r\n",
			want:    WipeEntity{ID: 12},
		},
		{
			name:    "unknown fields are ignored",
			catalog: ClientBound,
			data:    `{"kind":"game-won","extra":true}`,
			want:    GameWon{},
		},
		{
			name:    "client kind sent to server",
			catalog: ServerBound,
			data:    `{"kind":"game-start"}`,
			wantErr: ErrCommandNotFound,
		},
		{
			name:    "unknown kind",
			catalog: ClientBound,
			data:    `{"kind":"teleport"}`,
			wantErr: ErrCommandNotFound,
		},
		{
			name:    "not json",
			catalog: ServerBound,
			data:    `move-left 1`,
			wantErr: ErrSyntax,
		},
		{
			name:    "missing kind",
			catalog: ServerBound,
			data:    `{"id":1}`,
			wantErr: ErrSyntax,
		},
		{
			name:    "wrong field type",
			catalog: ServerBound,
			data:    `{"kind":"configure-player","teamSize":"two"}`,
			wantErr: ErrSyntax,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.catalog.Decode([]byte(tt.data))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Decode() want error %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() returned an unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Decode() did not match expected; diff:\n%s", diff)
			}
		})
	}
}

func TestDecodeInvertsEncode(t *testing.T) {
	commands := []Command{
		AssignID{ID: 9},
		ScoreChange{ID: 2, Score: 150},
		SpawnEntity{ID: 40, Category: InvaderBullet, X: 10, Y: 20},
		TranslateGroup{Category: Invader, DX: -10},
		Roster{Entries: []RosterEntry{{ID: 1, Name: "Alice"}}},
		FlushScreen{},
	}
	for _, cmd := range commands {
		data, err := Encode(cmd)
		if err != nil {
			t.Fatalf("Encode(%s) returned an unexpected error: %v", cmd.Kind(), err)
		}
		got, err := DecodeClient(data)
		if err != nil {
			t.Fatalf("DecodeClient(%s) returned an unexpected error: %v", data, err)
		}
		if diff := cmp.Diff(cmd, Command(got)); diff != "" {
			t.Errorf("%s did not survive encoding; diff:\n%s", cmd.Kind(), diff)
		}
	}
}

func TestCatalogs_AreDisjoint(t *testing.T) {
	for k := range ServerBound.kinds {
		if _, ok := ClientBound.kinds[k]; ok {
			t.Errorf("%s is in both catalogs", k)
		}
	}
	for k := range affinities {
		_, server := ServerBound.kinds[k]
		_, client := ClientBound.kinds[k]
		if !server && !client {
			t.Errorf("%s has an affinity but no catalog entry", k)
		}
	}
}
