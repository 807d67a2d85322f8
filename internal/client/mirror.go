package client

import (
	"github.com/dcrodman/invaders/internal/command"
)

// mirror applies client-bound commands to the client's state. It runs with
// the client's mutex held.
type mirror struct {
	client *Client
}

func (m *mirror) AssignID(cmd command.AssignID) error {
	c := m.client
	c.state.ID = cmd.ID
	reply := command.ConfigurePlayer{
		ID:       cmd.ID,
		Name:     c.opts.Name,
		TeamSize: c.opts.TeamSize,
		UDPPort:  c.UDPAddr().Port,
	}
	c.logger.Debugf("assigned id %d", cmd.ID)
	return c.sendLine(reply)
}

func (m *mirror) GameStart(command.GameStart) error {
	if m.client.state.Started {
		return nil
	}
	m.client.state.Started = true
	close(m.client.started)
	return nil
}

func (m *mirror) GameOver(command.GameOver) error {
	if m.client.state.Over {
		return nil
	}
	m.client.state.Over = true
	close(m.client.over)
	return nil
}

func (m *mirror) GameWon(command.GameWon) error {
	m.client.state.Outcome = "won"
	return nil
}

func (m *mirror) GameLost(command.GameLost) error {
	m.client.state.Outcome = "lost"
	return nil
}

func (m *mirror) ScoreChange(cmd command.ScoreChange) error {
	m.client.state.Scores[cmd.ID] = cmd.Score
	return nil
}

func (m *mirror) SpawnEntity(cmd command.SpawnEntity) error {
	m.client.state.Entities[cmd.ID] = Entity{Category: cmd.Category, X: cmd.X, Y: cmd.Y}
	return nil
}

func (m *mirror) MoveEntity(cmd command.MoveEntity) error {
	e, ok := m.client.state.Entities[cmd.ID]
	if !ok {
		return nil
	}
	e.X, e.Y = cmd.X, cmd.Y
	m.client.state.Entities[cmd.ID] = e
	return nil
}

func (m *mirror) WipeEntity(cmd command.WipeEntity) error {
	delete(m.client.state.Entities, cmd.ID)
	return nil
}

func (m *mirror) TranslateGroup(cmd command.TranslateGroup) error {
	for id, e := range m.client.state.Entities {
		if e.Category == cmd.Category {
			e.X += cmd.DX
			e.Y += cmd.DY
			m.client.state.Entities[id] = e
		}
	}
	return nil
}

func (m *mirror) FlushScreen(command.FlushScreen) error {
	m.client.state.Frames++
	select {
	case m.client.frames <- struct{}{}:
	default:
	}
	return nil
}

func (m *mirror) Roster(cmd command.Roster) error {
	m.client.state.Roster = append([]command.RosterEntry(nil), cmd.Entries...)
	return nil
}
