package lcd

// CharDevice is a character LCD such as an HD44780 behind an I2C backpack
// (tinygo.org/x/drivers/hd44780i2c).
type CharDevice interface {
	SetCursor(x, y uint8)
	Print(data []byte)
}

// CharSurface draws on a character grid. Coordinates are column and row.
type CharSurface struct {
	device  CharDevice
	columns int16
	rows    int16
}

// NewCharSurface creates a surface for a columns x rows display.
func NewCharSurface(device CharDevice, columns, rows int16) *CharSurface {
	return &CharSurface{
		device:  device,
		columns: columns,
		rows:    rows,
	}
}

// DrawText prints text at column x of row y, clipped to the visible columns.
func (c *CharSurface) DrawText(text []byte, x, y int16, align Align) error {
	if y < 0 || y >= c.rows {
		return ErrOffScreen
	}
	// Widths stay int: a line may be longer than an int16 can count.
	col := int(x)
	if align == AlignCenter {
		col -= len(text) / 2
	}
	if col < 0 {
		if -col >= len(text) {
			return nil
		}
		text = text[-col:]
		col = 0
	}
	if col >= int(c.columns) {
		return nil
	}
	// Truncate in-place, no allocation
	if n := int(c.columns) - col; len(text) > n {
		text = text[:n]
	}
	c.device.SetCursor(uint8(col), uint8(y))
	c.device.Print(text)
	return nil
}

// Size returns the grid dimensions.
func (c *CharSurface) Size() (columns, rows int16) {
	return c.columns, c.rows
}
